// Package postgres embeds the PostgreSQL schema migrations.
package postgres

import "embed"

// Files holds the numbered *.up.sql migrations applied by the PostgreSQL store.
//
//go:embed *.sql
var Files embed.FS
