package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SnapshotBackuper uploads and rotates registry snapshots.
type SnapshotBackuper interface {
	CreateAndUpload(ctx context.Context) (string, error)
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// BackupJob uploads a snapshot and prunes expired ones.
type BackupJob struct {
	ctx           context.Context
	backups       SnapshotBackuper
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates the backup job.
func NewBackupJob(ctx context.Context, backups SnapshotBackuper, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		ctx:           ctx,
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run uploads a snapshot, then rotates. A rotation failure does not fail
// the job since the new snapshot is already stored.
func (j *BackupJob) Run() error {
	key, err := j.backups.CreateAndUpload(j.ctx)
	if err != nil {
		return fmt.Errorf("backup upload failed: %w", err)
	}

	deleted, err := j.backups.RotateOldBackups(j.ctx, j.retentionDays)
	if err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	j.log.Info().Str("key", key).Int("rotated", deleted).Msg("Snapshot backup completed")
	return nil
}
