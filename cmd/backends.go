package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/remote"
)

// registerBackends registers every storage implementation with the database package.
func registerBackends() {
	database.RegisterBackend(postgres.BackendName, postgres.Open)
	database.RegisterBackend(mariadb.BackendName, mariadb.Open)
	database.RegisterBackend(remote.BackendName, remote.Open)
}

// openBackend registers the backends and opens the configured one.
func openBackend(ctx context.Context, cfg *config.Config) (*database.Backend, error) {
	registerBackends()

	switch cfg.Database.Backend {
	case postgres.BackendName, mariadb.BackendName:
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for the %s backend", cfg.Database.Backend)
		}
	case remote.BackendName:
		if cfg.Remote.URL == "" {
			return nil, fmt.Errorf("FRAS_API_URL environment variable is required for the %s backend", cfg.Database.Backend)
		}
	}

	return database.Open(ctx, cfg)
}
