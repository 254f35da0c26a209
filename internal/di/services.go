package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/clients/ingest"
	"github.com/aristath/symrefresh/internal/config"
	"github.com/aristath/symrefresh/internal/modules/boosts"
	"github.com/aristath/symrefresh/internal/modules/universe"
	"github.com/aristath/symrefresh/internal/reliability"
	"github.com/aristath/symrefresh/internal/work"
)

// InitializeServices creates the ingestion client and the services built on
// the repositories.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.IngestClient = ingest.NewClient(
		cfg.Ingest.BaseURL,
		cfg.Ingest.AdminAPIKey,
		cfg.Ingest.RetryPolicy(),
		log,
	)

	container.Orchestrator = work.NewOrchestrator(work.Deps{
		Store:     container.Store,
		Refresher: container.IngestClient,
		Writer:    container.RunStateWriter,
		History:   container.History,
		Lister:    work.NewDirectorySymbolLister(cfg.ProcessedDir),
	}, work.Config{
		MaxPerRun: cfg.Ingest.MaxPerRun,
		RateLimit: cfg.Ingest.RateLimit,
		Allowlist: cfg.Ingest.Allowlist,
		Policy:    cfg.Ingest.Policy(),
	}, log)

	container.Discovery = universe.NewDiscoveryService(container.Store, log)
	container.DiscoverySources = []universe.Source{universe.NewFileSource("seed", cfg.SeedPath)}

	container.Boosts = boosts.NewService(container.Store, log)

	if cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(ctx, cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}

		files := []string{cfg.RunStatePath}
		if cfg.RegistryBackend == config.BackendJSON {
			files = append(files, cfg.RegistryPath)
		}
		container.Backups = reliability.NewBackupService(
			s3Client,
			files,
			container.DB,
			filepath.Join(cfg.DataDir, "backup-staging"),
			log,
		)
	}

	return nil
}
