package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common/config"
	"github.com/LexiconIndonesia/media-render-service/common/dispatch"
	"github.com/LexiconIndonesia/media-render-service/common/logger"
	"github.com/LexiconIndonesia/media-render-service/handler"

	"github.com/rs/zerolog/log"

	"github.com/joho/godotenv"

	_ "github.com/LexiconIndonesia/media-render-service/docs"
)

// @title       Media Render Service API
// @version     1.0
// @description Queues video and image render jobs and reports their status

// @host     localhost:8080
// @BasePath /v1
// @schemes  http https

// @securityDefinitions.apikey ApiKeyAuth
// @in                         header
// @name                       X-API-KEY

func main() {
	// INITIATE CONFIGURATION
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file, using environment variables")
	}

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()
	logger.Setup(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Create a base context with cancel for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// INITIATE DEPENDENCIES
	a, err := setupApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup dependencies")
	}
	defer a.close()

	// INITIATE WORKER
	var (
		dispatcher  *dispatch.Dispatcher
		stopConsume context.CancelFunc = func() {}
		consumeDone                    = make(chan struct{})
	)
	if cfg.Service.Mode.RunsWorker() {
		d, src, err := a.worker(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to setup render worker")
		}
		dispatcher = d

		var consumeCtx context.Context
		consumeCtx, stopConsume = context.WithCancel(ctx)
		go func() {
			defer close(consumeDone)
			if err := dispatcher.Run(consumeCtx, src); err != nil {
				log.Error().Err(err).Msg("Render worker stopped")
				cancel()
			}
		}()
	} else {
		close(consumeDone)
	}

	// INITIATE SERVER
	var server *AppHttpServer
	if cfg.Service.Mode.RunsAPI() {
		server, err = NewAppHttpServer(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create the server")
		}

		server.SetStatusStore(a.store)
		server.SetPublisher(a.broker)
		server.SetEvents(a.events)
		var workers handler.WorkerState
		if dispatcher != nil {
			workers = dispatcher
		}
		server.SetHealth(a.healthDeps(workers))

		if err := server.setupRoute(); err != nil {
			log.Fatal().Err(err).Msg("Failed to setup routes")
		}

		go func() {
			if err := server.start(); err != nil {
				log.Error().Err(err).Msg("Server error")
				cancel()
			}
		}()

		log.Info().Str("address", cfg.Listen.Addr()).Msg("Server started successfully")
		log.Info().Str("swagger", fmt.Sprintf("http://%s/swagger/index.html", cfg.Listen.Addr())).Msg("Swagger documentation available at")
	}

	// Wait for shutdown signal
	select {
	case <-shutdown:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
		log.Warn().Msg("Shutting down after a fatal component error")
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}
		shutdownCancel()
	}

	stopConsume()
	<-consumeDone

	if dispatcher != nil {
		graceCtx, graceCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
		if err := dispatcher.Shutdown(graceCtx); err != nil {
			log.Warn().Err(err).Msg("Render jobs cancelled at shutdown were requeued")
		}
		graceCancel()
	}

	log.Info().Msg("Service gracefully stopped")
}
