package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/symrefresh/internal/database"
)

const (
	criticalFreeBytes = 500 * 1024 * 1024
	lowFreeBytes      = 2 * 1024 * 1024 * 1024
)

// MaintenanceJob checks the data volume and, for the SQLite backend, the
// registry database.
type MaintenanceJob struct {
	db      *database.DB
	dataDir string
	usage   func(ctx context.Context, path string) (*disk.UsageStat, error)
	log     zerolog.Logger
}

// NewMaintenanceJob creates the maintenance job. db may be nil.
func NewMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:      db,
		dataDir: dataDir,
		usage:   disk.UsageWithContext,
		log:     log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance checks. It fails when the data volume is
// nearly full or the database is corrupt.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.checkDiskSpace(ctx); err != nil {
		return err
	}

	if j.db == nil {
		return nil
	}

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Registry database failed integrity check")
		return err
	}

	if _, err := j.db.Conn().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	j.log.Info().Msg("Maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace(ctx context.Context) error {
	stat, err := j.usage(ctx, j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read disk usage for %s: %w", j.dataDir, err)
	}

	freeMB := stat.Free / 1024 / 1024
	switch {
	case stat.Free < criticalFreeBytes:
		j.log.Error().Uint64("free_mb", freeMB).Msg("Insufficient disk space for registry writes")
		return fmt.Errorf("only %d MB free on %s", freeMB, j.dataDir)
	case stat.Free < lowFreeBytes:
		j.log.Warn().Uint64("free_mb", freeMB).Float64("used_percent", stat.UsedPercent).Msg("Disk space running low")
	default:
		j.log.Debug().Uint64("free_mb", freeMB).Msg("Disk space check")
	}

	return nil
}
