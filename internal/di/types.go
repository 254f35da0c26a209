// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/symrefresh/internal/clients/ingest"
	"github.com/aristath/symrefresh/internal/config"
	"github.com/aristath/symrefresh/internal/database"
	"github.com/aristath/symrefresh/internal/modules/boosts"
	"github.com/aristath/symrefresh/internal/modules/universe"
	"github.com/aristath/symrefresh/internal/registry"
	"github.com/aristath/symrefresh/internal/reliability"
	"github.com/aristath/symrefresh/internal/runstate"
	"github.com/aristath/symrefresh/internal/work"
)

// Container holds all dependencies for the application.
// It is built once by Wire and shared by the binaries.
type Container struct {
	Config *config.Config

	// Database (run history always; registry when REGISTRY_BACKEND=sqlite)
	DB *database.DB

	// Repositories
	Store          registry.Store
	RunStateWriter *runstate.Writer
	History        *runstate.HistoryRepository

	// Clients
	IngestClient *ingest.Client

	// Services
	Orchestrator     *work.Orchestrator
	Discovery        *universe.DiscoveryService
	DiscoverySources []universe.Source
	Boosts           *boosts.Service
	Backups          *reliability.BackupService // nil unless BACKUP_ENABLED=true
}

// Close releases the database connection.
func (c *Container) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
