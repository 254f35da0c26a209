package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/config"
	"github.com/aristath/symrefresh/internal/database"
)

// InitializeDatabases opens the SQLite database and applies the schema.
// The SQLite registry backend gets the durable profile since the database
// is then the only copy of the registry.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	profile := database.ProfileStandard
	if cfg.RegistryBackend == config.BackendSQLite {
		profile = database.ProfileDurable
	}

	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: profile,
		Name:    "symrefresh",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Debug().
		Str("path", db.Path()).
		Str("profile", string(profile)).
		Msg("Database initialized")

	return &Container{Config: cfg, DB: db}, nil
}
