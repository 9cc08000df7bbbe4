package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common"
	"github.com/LexiconIndonesia/media-render-service/common/config"
	"github.com/LexiconIndonesia/media-render-service/common/status"
	"github.com/LexiconIndonesia/media-render-service/handler"
	"github.com/LexiconIndonesia/media-render-service/middlewares"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type AppHttpServer struct {
	router    *chi.Mux
	cfg       config.Config
	server    *http.Server
	store     status.Store
	publisher handler.Publisher
	events    handler.EventLister
	health    handler.HealthDeps
}

func NewAppHttpServer(cfg config.Config) (*AppHttpServer, error) {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-KEY"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(middleware.Compress(5))
	r.Use(middleware.SetHeader("X-Content-Type-Options", "nosniff"))
	r.Use(middleware.SetHeader("X-Frame-Options", "SAMEORIGIN"))
	r.Use(middleware.SetHeader("Referrer-Policy", "no-referrer"))

	server := &AppHttpServer{
		router: r,
		cfg:    cfg,
	}
	return server, nil
}

// SetStatusStore sets the status store dependency
func (s *AppHttpServer) SetStatusStore(store status.Store) {
	s.store = store
}

// SetPublisher sets the job publisher dependency
func (s *AppHttpServer) SetPublisher(p handler.Publisher) {
	s.publisher = p
}

// SetEvents sets the job event log dependency
func (s *AppHttpServer) SetEvents(events handler.EventLister) {
	s.events = events
}

// SetHealth sets the components reported by the health endpoints
func (s *AppHttpServer) SetHealth(deps handler.HealthDeps) {
	s.health = deps
}

func (s *AppHttpServer) setupRoute() error {
	r := s.router

	if s.store == nil || s.publisher == nil {
		return errors.New("status store and publisher are required")
	}
	if s.cfg.Security.BackendApiKey == "" {
		log.Warn().Msg("BACKEND_API_KEY is empty, API key check disabled")
	}

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Public health endpoint (no authentication required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"` + common.AppName + `"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middlewares.ApiKey(s.cfg.Security.BackendApiKey))

		limiter := middlewares.RateLimit(s.cfg.Security.RateLimitRequests, s.cfg.Security.RateLimitWindow)
		jobHandler := handler.NewJobHandler(s.store, s.publisher, s.events, limiter)
		healthHandler := handler.NewHealthHandler(s.health)

		r.Mount("/jobs", jobHandler.Router())
		r.Mount("/health", healthHandler.Router())
	})
	return nil
}

func (s *AppHttpServer) start() error {
	cfg := s.cfg
	log.Info().Msg("Starting up server...")

	s.server = &http.Server{
		Addr:         cfg.Listen.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// stop gracefully shuts down the server
func (s *AppHttpServer) stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
