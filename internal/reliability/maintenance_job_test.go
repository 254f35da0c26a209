package reliability

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/symrefresh/internal/database"
)

func usageWithFree(free uint64) func(context.Context, string) (*disk.UsageStat, error) {
	return func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path, Free: free}, nil
	}
}

func TestMaintenanceJob_DiskSpace(t *testing.T) {
	job := NewMaintenanceJob(nil, t.TempDir(), zerolog.Nop())
	assert.Equal(t, "maintenance", job.Name())

	job.usage = usageWithFree(10 * 1024 * 1024 * 1024)
	assert.NoError(t, job.Run())

	job.usage = usageWithFree(1024 * 1024 * 1024)
	assert.NoError(t, job.Run(), "low space only warns")

	job.usage = usageWithFree(100 * 1024 * 1024)
	assert.Error(t, job.Run())

	job.usage = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return nil, errors.New("no such device")
	}
	assert.Error(t, job.Run())
}

func TestMaintenanceJob_ChecksDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(database.Config{Path: filepath.Join(dir, "symrefresh.db"), Name: "registry"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	job := NewMaintenanceJob(db, dir, zerolog.Nop())
	job.usage = usageWithFree(10 * 1024 * 1024 * 1024)

	assert.NoError(t, job.Run())
}
