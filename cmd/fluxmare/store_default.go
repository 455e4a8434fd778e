//go:build !sqlite && !postgres

package main

import (
	"fluxmare/internal/config"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
)

// selectStore returns the in-memory store when built without storage tags.
// A configured DSN only produces a hint to rebuild.
func selectStore(cfg *config.Config, logger observability.Logger) storage.Store {
	if cfg.DatabaseURL != "" {
		logger.Warn("DATABASE_URL set, but binary not built with -tags postgres; using in-memory store")
	}
	logger.Info("using in-memory store")
	return storage.NewMemoryStore()
}

func sqliteStatus(string) string { return "" }

func postgresStatus(string) string { return "" }
