//go:build postgres

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"fluxmare/internal/storage"
)

// testDB holds a shared database connection for test suites.
var testDB struct {
	connStr   string
	pool      *pgxpool.Pool
	store     *Store
	container testcontainers.Container
}

// TestMain sets up a PostgreSQL database for tests.
// It supports two modes:
//  1. DATABASE_URL env var - uses an existing PostgreSQL instance (CI/custom)
//  2. testcontainers-go - automatically starts a postgres:16-alpine container
func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("fluxmare_test"),
			tcpostgres.WithUsername("fluxmare"),
			tcpostgres.WithPassword("fluxmare"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start PostgreSQL container: %v\n", err)
			os.Exit(1)
		}
		testDB.container = container

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
			_ = container.Terminate(ctx)
			os.Exit(1)
		}
	}

	testDB.connStr = connStr

	store, err := New(connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create store: %v\n", err)
		if testDB.container != nil {
			_ = testDB.container.Terminate(ctx)
		}
		os.Exit(1)
	}
	testDB.store = store
	testDB.pool = store.Pool()

	code := m.Run()

	_ = store.Close()
	if testDB.container != nil {
		_ = testDB.container.Terminate(ctx)
	}

	os.Exit(code)
}

// resetDB clears the key-value table between tests.
func resetDB(t *testing.T) {
	t.Helper()
	if _, err := testDB.pool.Exec(context.Background(), "DELETE FROM kv"); err != nil {
		t.Fatalf("failed to reset kv: %v", err)
	}
}

func TestGetSetDelete(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	s := testDB.store

	t.Run("missing key", func(t *testing.T) {
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("upsert", func(t *testing.T) {
		if err := s.Set(ctx, "currentUser", "demo"); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := s.Set(ctx, "currentUser", "user1"); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		v, err := s.Get(ctx, "currentUser")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if v != "user1" {
			t.Errorf("expected user1, got %q", v)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(ctx, "currentUser"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Delete(ctx, "currentUser"); err != nil {
			t.Fatalf("delete missing: %v", err)
		}
		if _, err := s.Get(ctx, "currentUser"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		if err := s.Set(ctx, "", "x"); !errors.Is(err, storage.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestKeys(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	s := testDB.store

	for _, k := range []string{"conversations_demo", "conversations_user1", "user_demo"} {
		if err := s.Set(ctx, k, "[]"); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	keys, err := s.Keys(ctx, "conversations_")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if got := strings.Join(keys, ","); got != "conversations_demo,conversations_user1" {
		t.Fatalf("keys = %s", got)
	}
}

func TestStatus(t *testing.T) {
	status, err := Status(testDB.connStr)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(status, "schema_version=1") {
		t.Fatalf("unexpected status %q", status)
	}
}
