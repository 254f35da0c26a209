// Package main is the long-running symrefresh service. It serves the
// registry and admin API and runs refresh passes on a cron schedule.
//
// Startup sequence:
// 1. Load configuration and initialize logging
// 2. Wire dependencies via the DI container (database, registry, services)
// 3. Register scheduled jobs (refresh, backup, maintenance)
// 4. Start the HTTP server and the scheduler
// 5. Wait for SIGINT/SIGTERM and shut down gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/symrefresh/internal/config"
	"github.com/aristath/symrefresh/internal/di"
	"github.com/aristath/symrefresh/internal/domain"
	boosthandlers "github.com/aristath/symrefresh/internal/modules/boosts/handlers"
	universehandlers "github.com/aristath/symrefresh/internal/modules/universe/handlers"
	"github.com/aristath/symrefresh/internal/scheduler"
	"github.com/aristath/symrefresh/internal/server"
	"github.com/aristath/symrefresh/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("version", version).Msg("Starting symrefresh")

	// Cancelled on shutdown; bounds every job run.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	sched := scheduler.New(log)
	jobs, err := di.RegisterJobs(ctx, sched, container, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	serverCfg := server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		DataDir:     cfg.DataDir,
		Version:     version,
		AdminAPIKey: cfg.Ingest.AdminAPIKey,
		Registry: universehandlers.NewHandler(
			container.Store,
			cfg.Ingest.Policy(),
			container.Discovery,
			container.DiscoverySources,
			log,
		),
		Boosts:   boosthandlers.NewHandler(container.Boosts, domain.BoostSourceManual, log),
		RunState: container.RunStateWriter,
		History:  container.History,
	}
	// Refresh must stay a nil interface when the job is disabled.
	if jobs.Refresh != nil {
		serverCfg.Refresh = jobs.Refresh
	}
	srv := server.New(serverCfg)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	sched.Start()
	log.Info().Int("port", cfg.Port).Int("jobs", sched.Entries()).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// A running refresh stops at the next symbol boundary.
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
