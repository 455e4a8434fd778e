//go:build sqlite && postgres

package main

import (
	"fluxmare/internal/config"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
	pgstore "fluxmare/internal/storage/postgres"
	sqlitestore "fluxmare/internal/storage/sqlite"
)

// selectStore picks PostgreSQL if DATABASE_URL is set, otherwise SQLite.
func selectStore(cfg *config.Config, logger observability.Logger) storage.Store {
	if cfg.DatabaseURL != "" {
		st, err := pgstore.New(cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres init failed; falling back to sqlite", "error", err)
		} else {
			logger.Info("using postgres store")
			return st
		}
	}
	st, err := sqlitestore.New(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("sqlite init failed; falling back to memory store", "error", err)
		return storage.NewMemoryStore()
	}
	logger.Info("using sqlite store", "dsn", cfg.SQLiteDSN)
	return st
}

func sqliteStatus(dsn string) string {
	s, err := sqlitestore.Status(dsn)
	if err != nil {
		return ""
	}
	return s
}

func postgresStatus(url string) string {
	if url == "" {
		return ""
	}
	s, err := pgstore.Status(url)
	if err != nil {
		return ""
	}
	return s
}
