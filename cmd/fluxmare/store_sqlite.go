//go:build sqlite && !postgres

package main

import (
	"fluxmare/internal/config"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
	sqlitestore "fluxmare/internal/storage/sqlite"
)

// selectStore returns a SQLite-backed store when built with the 'sqlite' tag.
// Configure with SQLITE_DSN (e.g., file:fluxmare.db?cache=shared&_fk=1).
func selectStore(cfg *config.Config, logger observability.Logger) storage.Store {
	st, err := sqlitestore.New(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("sqlite init failed; falling back to memory store", "error", err)
		return storage.NewMemoryStore()
	}
	logger.Info("using sqlite store", "dsn", cfg.SQLiteDSN)
	return st
}

// sqliteStatus returns migration status when built with sqlite tag.
func sqliteStatus(dsn string) string {
	s, err := sqlitestore.Status(dsn)
	if err != nil {
		return ""
	}
	return s
}

func postgresStatus(string) string { return "" }
