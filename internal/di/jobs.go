package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/config"
	"github.com/aristath/symrefresh/internal/reliability"
	"github.com/aristath/symrefresh/internal/scheduler"
)

// JobInstances holds the jobs registered with the scheduler. Refresh is nil
// when ingestion is not configured; Backup is nil unless backups are enabled.
type JobInstances struct {
	Refresh     *scheduler.RefreshJob
	Backup      *scheduler.BackupJob
	Maintenance *reliability.MaintenanceJob
}

// RegisterJobs creates the serve-mode jobs and adds them to sched. ctx
// bounds every job run and is cancelled on shutdown.
func RegisterJobs(ctx context.Context, sched *scheduler.Scheduler, container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{}

	if err := cfg.ValidateIngest(); err != nil {
		log.Warn().Err(err).Msg("Scheduled refresh disabled")
	} else {
		jobs.Refresh = scheduler.NewRefreshJob(ctx, container.Orchestrator, container.IngestClient, log)
		if err := sched.AddJob(cfg.RefreshSchedule, jobs.Refresh); err != nil {
			return nil, fmt.Errorf("failed to register refresh job: %w", err)
		}
	}

	if container.Backups != nil {
		jobs.Backup = scheduler.NewBackupJob(ctx, container.Backups, cfg.Backup.RetentionDays, log)
		if err := sched.AddJob(cfg.Backup.Schedule, jobs.Backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	db := container.DB
	if cfg.RegistryBackend != config.BackendSQLite {
		db = nil
	}
	jobs.Maintenance = reliability.NewMaintenanceJob(db, cfg.DataDir, log)
	if err := sched.AddJob(cfg.MaintenanceSchedule, jobs.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}

	return jobs, nil
}
