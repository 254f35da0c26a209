package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/config"
	"github.com/aristath/symrefresh/internal/registry"
	"github.com/aristath/symrefresh/internal/runstate"
)

// InitializeRepositories creates the registry store and run-state persistence.
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.RegistryBackend {
	case config.BackendSQLite:
		container.Store = registry.NewSQLiteStore(container.DB.Conn(), log)
	default:
		container.Store = registry.NewJSONFileStore(cfg.RegistryPath, log)
	}

	container.RunStateWriter = runstate.NewWriter(cfg.RunStatePath, log)
	container.History = runstate.NewHistoryRepository(container.DB.Conn(), log)

	log.Debug().Str("backend", cfg.RegistryBackend).Msg("Repositories initialized")
	return nil
}
