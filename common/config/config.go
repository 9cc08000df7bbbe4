package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common"
	"github.com/rs/zerolog/log"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return
	}
	*result = uint(n)
}

func loadEnvInt(key string, result *int) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = n
}

func loadEnvFloat(key string, result *float64) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return
	}
	*result = f
}

func loadEnvBool(key string, result *bool) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return
	}
	*result = b
}

// loadEnvDuration accepts Go duration strings ("30m", "1.5s")
func loadEnvDuration(key string, result *time.Duration) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Ignoring invalid duration")
		return
	}
	*result = d
}

/* Configuration */

/* Service Configuration */
type serviceConfig struct {
	Mode common.ServiceMode `json:"mode"`
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{Mode: common.ModeAll}
}

func (s *serviceConfig) loadFromEnv() {
	mode := string(s.Mode)
	loadEnvString("SERVICE_MODE", &mode)
	s.Mode = common.ServiceMode(strings.ToLower(mode))
}

/* PgSQL Configuration */
type pgSqlConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Database string `json:"database"`
	SslMode  string `json:"ssl_mode"`
	User     string `json:"user"`
	Password string `json:"password"`
	MaxConns int    `json:"max_conns"`
}

func (p pgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

func defaultPgSql() pgSqlConfig {
	return pgSqlConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "media_render",
		User:     "",
		Password: "",
		SslMode:  "disable",
		MaxConns: 20,
	}
}

func (p *pgSqlConfig) loadFromEnv() {
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
	loadEnvInt("POSTGRES_MAX_CONNS", &p.MaxConns)
}

/* Listen Configuration */

type listenConfig struct {
	Host string `json:"host"`
	Port uint   `json:"port"`
}

func (l listenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

func defaultListenConfig() listenConfig {
	return listenConfig{
		Host: "127.0.0.1",
		Port: 8080,
	}
}

func (l *listenConfig) loadFromEnv() {
	loadEnvString("LISTEN_HOST", &l.Host)
	loadEnvUint("LISTEN_PORT", &l.Port)
}

/* NATS Configuration */

type natsConfig struct {
	Host     string
	Port     uint
	Username string
	Password string
	// Connection retry policy applied at startup
	ConnectAttempts int
	ConnectBackoff  time.Duration
	// JetStream redelivers an unacknowledged message after AckWait
	AckWait time.Duration
}

func (c *natsConfig) loadFromEnv() {
	loadEnvString("NATS_HOST", &c.Host)
	loadEnvUint("NATS_PORT", &c.Port)
	loadEnvString("NATS_USER", &c.Username)
	loadEnvString("NATS_PASSWORD", &c.Password)
	loadEnvInt("NATS_CONNECT_ATTEMPTS", &c.ConnectAttempts)
	loadEnvDuration("NATS_CONNECT_BACKOFF", &c.ConnectBackoff)
	loadEnvDuration("NATS_ACK_WAIT", &c.AckWait)
}

func (c natsConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func defaultNatsConfig() natsConfig {
	return natsConfig{
		Host:            "localhost",
		Port:            4222,
		Username:        "",
		Password:        "",
		ConnectAttempts: 5,
		ConnectBackoff:  1 * time.Second,
		AckWait:         5 * time.Minute,
	}
}

/* Security Configuration */

type securityConfig struct {
	BackendApiKey string
	// Intake rate limit: RateLimitRequests per RateLimitWindow per client IP
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

func (s *securityConfig) loadFromEnv() {
	s.BackendApiKey = getEnv("BACKEND_API_KEY", "")
	loadEnvInt("RATE_LIMIT_REQUESTS", &s.RateLimitRequests)
	loadEnvDuration("RATE_LIMIT_WINDOW", &s.RateLimitWindow)
}

func defaultSecurityConfig() securityConfig {
	return securityConfig{
		BackendApiKey:     "",
		RateLimitRequests: 20,
		RateLimitWindow:   15 * time.Minute,
	}
}

/* Redis Configuration */

type redisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	// Cache retention for terminal and in-flight status records
	TerminalTTL time.Duration `json:"terminal_ttl"`
	ActiveTTL   time.Duration `json:"active_ttl"`
}

func (r redisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (r *redisConfig) loadFromEnv() {
	loadEnvBool("REDIS_ENABLED", &r.Enabled)
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)
	loadEnvInt("REDIS_DB", &r.DB)
	loadEnvDuration("REDIS_TERMINAL_TTL", &r.TerminalTTL)
	loadEnvDuration("REDIS_ACTIVE_TTL", &r.ActiveTTL)
	log.Info().Interface("redis", r).Msg("Redis config loaded")
}

func defaultRedisConfig() redisConfig {
	return redisConfig{
		Enabled:     true,
		Host:        "localhost",
		Port:        6379,
		Password:    "",
		DB:          0,
		TerminalTTL: 30 * time.Minute,
		ActiveTTL:   2 * time.Hour,
	}
}

/* GCS Configuration */

type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
	Bucket          string
	// When positive, result URLs are signed for this long instead of public
	SignedURLTTL time.Duration
	// When set, results are written under this local directory instead of GCS
	LocalDir string
}

func (g *GCSConfig) loadFromEnv() {
	g.ProjectID = getEnv("GCS_PROJECT_ID", "")
	g.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", "")
	g.Bucket = getEnv("GCS_STORAGE_BUCKET", g.Bucket)
	g.LocalDir = getEnv("LOCAL_STORAGE_DIR", "")
	loadEnvDuration("GCS_SIGNED_URL_TTL", &g.SignedURLTTL)
}

func defaultGcsConfig() GCSConfig {
	return GCSConfig{
		ProjectID:       "",
		CredentialsFile: "",
		Bucket:          "media-render-videos",
	}
}

/* Worker Configuration */

type workerConfig struct {
	PoolSize int
	Prefetch int
	// Retry policy for one delivery
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	AttemptTimeout    time.Duration
	// Terminal status writes are retried this many times
	TerminalWriteAttempts int
	RequeueDelay          time.Duration
	HeartbeatInterval     time.Duration
	ShutdownTimeout       time.Duration
	DistributedLease      bool
}

func (w *workerConfig) loadFromEnv() {
	loadEnvInt("WORKER_POOL_SIZE", &w.PoolSize)
	loadEnvInt("WORKER_PREFETCH", &w.Prefetch)
	loadEnvInt("WORKER_MAX_ATTEMPTS", &w.MaxAttempts)
	loadEnvDuration("WORKER_INITIAL_BACKOFF", &w.InitialBackoff)
	loadEnvFloat("WORKER_BACKOFF_MULTIPLIER", &w.BackoffMultiplier)
	loadEnvDuration("WORKER_ATTEMPT_TIMEOUT", &w.AttemptTimeout)
	loadEnvInt("WORKER_TERMINAL_WRITE_ATTEMPTS", &w.TerminalWriteAttempts)
	loadEnvDuration("WORKER_REQUEUE_DELAY", &w.RequeueDelay)
	loadEnvDuration("WORKER_HEARTBEAT_INTERVAL", &w.HeartbeatInterval)
	loadEnvDuration("WORKER_SHUTDOWN_TIMEOUT", &w.ShutdownTimeout)
	loadEnvBool("WORKER_DISTRIBUTED_LEASE", &w.DistributedLease)
}

func defaultWorkerConfig() workerConfig {
	return workerConfig{
		PoolSize:              runtime.NumCPU(),
		Prefetch:              0, // follows PoolSize
		MaxAttempts:           3,
		InitialBackoff:        1 * time.Second,
		BackoffMultiplier:     2,
		AttemptTimeout:        30 * time.Minute,
		TerminalWriteAttempts: 5,
		RequeueDelay:          1 * time.Second,
		HeartbeatInterval:     1 * time.Minute,
		ShutdownTimeout:       35 * time.Minute,
		DistributedLease:      false,
	}
}

/* Media Configuration */

type mediaConfig struct {
	FFmpegPath string
	TempDir    string
	// Directory with fonts referenced by slideshow subtitles
	FontDir string
	// Speech synthesis with character alignment
	SpeechBaseURL string
	SpeechAPIKey  string
	// Story generation for videos without a script
	StoryURL     string
	StoryModelID string
	StoryAPIKey  string
	// Concurrent downloads per job
	DownloadConcurrency int
}

func (m *mediaConfig) loadFromEnv() {
	loadEnvString("FFMPEG_PATH", &m.FFmpegPath)
	loadEnvString("MEDIA_TEMP_DIR", &m.TempDir)
	loadEnvString("MEDIA_FONT_DIR", &m.FontDir)
	loadEnvString("TEXT_TO_AUDIO_URL", &m.SpeechBaseURL)
	loadEnvString("TEXT_TO_AUDIO_API_KEY", &m.SpeechAPIKey)
	loadEnvString("GENERATE_STORY_URL", &m.StoryURL)
	loadEnvString("GENERATE_STORY_MODAL_ID", &m.StoryModelID)
	loadEnvString("GENERATE_STORY_API_KEY", &m.StoryAPIKey)
	loadEnvInt("MEDIA_DOWNLOAD_CONCURRENCY", &m.DownloadConcurrency)
}

func defaultMediaConfig() mediaConfig {
	return mediaConfig{
		FFmpegPath:          "ffmpeg",
		TempDir:             os.TempDir(),
		SpeechBaseURL:       "https://api.elevenlabs.io",
		DownloadConcurrency: 4,
	}
}

/* Status Configuration */

type statusConfig struct {
	// Backend is "postgres" or "memory"
	Backend string
}

func (s *statusConfig) loadFromEnv() {
	loadEnvString("STATUS_BACKEND", &s.Backend)
	s.Backend = strings.ToLower(s.Backend)
}

func defaultStatusConfig() statusConfig {
	return statusConfig{Backend: "postgres"}
}

/* Log Configuration */

type logConfig struct {
	Level  string
	Format string
}

func (l *logConfig) loadFromEnv() {
	loadEnvString("LOG_LEVEL", &l.Level)
	loadEnvString("LOG_FORMAT", &l.Format)
}

func defaultLogConfig() logConfig {
	return logConfig{Level: "info", Format: "json"}
}

type Config struct {
	Service  serviceConfig
	Listen   listenConfig
	PgSql    pgSqlConfig
	Security securityConfig
	Nats     natsConfig
	Redis    redisConfig
	GCS      GCSConfig
	Worker   workerConfig
	Media    mediaConfig
	Status   statusConfig
	Log      logConfig
}

func (c *Config) LoadFromEnv() {
	c.Service.loadFromEnv()
	c.Listen.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Security.loadFromEnv()
	c.Nats.loadFromEnv()
	c.Redis.loadFromEnv()
	c.GCS.loadFromEnv()
	c.Worker.loadFromEnv()
	c.Media.loadFromEnv()
	c.Status.loadFromEnv()
	c.Log.loadFromEnv()
}

// Validate rejects unusable settings and normalizes worker sizing.
// Prefetch below the pool size would leave slots idle, so it is raised.
func (c *Config) Validate() error {
	switch c.Service.Mode {
	case common.ModeAll, common.ModeAPI, common.ModeWorker:
	default:
		return fmt.Errorf("%w: unknown service mode %q", common.ErrInvalidConfig, c.Service.Mode)
	}

	switch c.Status.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("%w: unknown status backend %q", common.ErrInvalidConfig, c.Status.Backend)
	}

	w := &c.Worker
	if w.PoolSize < 1 {
		w.PoolSize = 1
	}
	if w.Prefetch < w.PoolSize {
		if w.Prefetch != 0 {
			log.Warn().Int("prefetch", w.Prefetch).Int("poolSize", w.PoolSize).Msg("Prefetch below pool size, raising it")
		}
		w.Prefetch = w.PoolSize
	}
	if w.Prefetch > 4*w.PoolSize {
		log.Warn().Int("prefetch", w.Prefetch).Int("poolSize", w.PoolSize).Msg("Prefetch far above pool size defeats backpressure")
	}
	if w.MaxAttempts < 1 {
		return fmt.Errorf("%w: WORKER_MAX_ATTEMPTS must be at least 1", common.ErrInvalidConfig)
	}
	if w.AttemptTimeout <= 0 {
		return fmt.Errorf("%w: WORKER_ATTEMPT_TIMEOUT must be positive", common.ErrInvalidConfig)
	}
	if w.BackoffMultiplier < 1 {
		w.BackoffMultiplier = 1
	}
	if w.TerminalWriteAttempts < 1 {
		w.TerminalWriteAttempts = 1
	}
	if w.DistributedLease && !c.Redis.Enabled {
		return fmt.Errorf("%w: WORKER_DISTRIBUTED_LEASE requires REDIS_ENABLED", common.ErrInvalidConfig)
	}
	if c.Nats.ConnectAttempts < 1 {
		c.Nats.ConnectAttempts = 1
	}
	if c.Security.RateLimitRequests < 0 {
		c.Security.RateLimitRequests = 0
	}
	return nil
}

func DefaultConfig() Config {
	return Config{
		Service:  defaultServiceConfig(),
		Listen:   defaultListenConfig(),
		PgSql:    defaultPgSql(),
		Security: defaultSecurityConfig(),
		Nats:     defaultNatsConfig(),
		Redis:    defaultRedisConfig(),
		GCS:      defaultGcsConfig(),
		Worker:   defaultWorkerConfig(),
		Media:    defaultMediaConfig(),
		Status:   defaultStatusConfig(),
		Log:      defaultLogConfig(),
	}
}
