package main

import (
	"context"
	"fmt"
	"os"

	"github.com/LexiconIndonesia/media-render-service/common/config"
	"github.com/LexiconIndonesia/media-render-service/common/db"
	"github.com/LexiconIndonesia/media-render-service/common/dispatch"
	"github.com/LexiconIndonesia/media-render-service/common/logger"
	"github.com/LexiconIndonesia/media-render-service/common/media"
	"github.com/LexiconIndonesia/media-render-service/common/messaging"
	"github.com/LexiconIndonesia/media-render-service/common/redis"
	"github.com/LexiconIndonesia/media-render-service/common/status"
	"github.com/LexiconIndonesia/media-render-service/common/storage"
	"github.com/LexiconIndonesia/media-render-service/common/work"
	"github.com/LexiconIndonesia/media-render-service/handler"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// app holds the long-lived dependencies shared by the API and the worker
type app struct {
	cfg     config.Config
	db      *db.DB // nil with the memory status backend
	redis   *redis.RedisClient
	broker  *messaging.NatsBroker
	store   status.Store
	events  *logger.EventService
	lease   *work.LeaseManager // set by worker when leases are enabled
	closers []func()
}

func setupApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var base status.Store
	switch cfg.Status.Backend {
	case "postgres":
		dbConn, err := db.SetupDatabase(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("setting up database: %w", err)
		}
		a.db = dbConn
		a.redis = dbConn.Redis
		a.closers = append(a.closers, dbConn.Close)
		base = status.NewPostgresStore(dbConn.Queries)
		a.events = logger.NewEventService(dbConn.Queries)
	default:
		log.Warn().Msg("Using in-memory status store, statuses are lost on restart")
		if cfg.Redis.Enabled {
			client, err := redis.NewClient(cfg)
			if err != nil {
				return nil, fmt.Errorf("creating Redis client: %w", err)
			}
			a.redis = client
			a.closers = append(a.closers, func() { client.Close() })
		}
		base = status.NewMemoryStore()
		a.events = logger.NewEventService(nil)
	}

	a.store = base
	if a.redis != nil {
		a.store = status.NewCachedStore(base, a.redis, cfg.Redis.TerminalTTL, cfg.Redis.ActiveTTL)
	}

	broker, err := messaging.SetupNatsBroker(ctx, cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("setting up NATS broker: %w", err)
	}
	a.broker = broker
	a.closers = append(a.closers, func() { broker.Close() })

	return a, nil
}

// close releases dependencies in reverse order of creation
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) healthDeps(workers handler.WorkerState) handler.HealthDeps {
	deps := handler.HealthDeps{Broker: a.broker, Workers: workers}
	if a.db != nil {
		deps.Database = a.db
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	if a.lease != nil {
		deps.Leases = a.lease
	}
	return deps
}

func (a *app) objectStorage(ctx context.Context) (storage.StorageService, error) {
	if a.cfg.GCS.LocalDir != "" {
		log.Info().Str("dir", a.cfg.GCS.LocalDir).Msg("Storing results on local disk")
		return storage.NewLocalStorage(a.cfg.GCS.LocalDir)
	}
	gcs, err := storage.NewGCSStorage(ctx, a.cfg.GCS)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { gcs.Close() })
	return gcs, nil
}

// worker builds the dispatcher and the source it consumes from
func (a *app) worker(ctx context.Context) (*dispatch.Dispatcher, messaging.Source, error) {
	cfg := a.cfg

	objects, err := a.objectStorage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("setting up object storage: %w", err)
	}

	pool, err := work.NewPool(cfg.Worker.PoolSize)
	if err != nil {
		return nil, nil, err
	}

	opts := dispatch.OptionsFromConfig(cfg)
	opts.Events = a.events
	if cfg.Worker.DistributedLease {
		a.lease = work.NewLeaseManager(a.redis, leaseOwner(), work.DefaultLeaseTTL)
		opts.Lease = a.lease
	}

	d := dispatch.New(pool, media.NewRouterFromConfig(cfg, objects), a.store, opts)

	consumer, err := messaging.GetRenderConsumer(ctx, a.broker, cfg.Worker.Prefetch, cfg.Nats.AckWait)
	if err != nil {
		return nil, nil, fmt.Errorf("creating render consumer: %w", err)
	}
	src := messaging.NewJetStreamSource(consumer, cfg.Worker.Prefetch, cfg.Worker.RequeueDelay)

	log.Info().
		Int("poolSize", pool.Size()).
		Int("prefetch", cfg.Worker.Prefetch).
		Int("maxAttempts", opts.MaxAttempts).
		Dur("attemptTimeout", opts.AttemptTimeout).
		Bool("lease", opts.Lease != nil).
		Msg("Render worker ready")

	return d, src, nil
}

func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
