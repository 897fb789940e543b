// Package pgtest opens a migrated, empty test database or skips the test
// when PostgreSQL is unavailable. Packages sharing the database should be
// run with `go test -p 1`.
package pgtest

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/umbusk1/bibliofep/pkg/config"
	"github.com/umbusk1/bibliofep/pkg/postgres"
)

// Open returns a client for the test database with every table truncated.
func Open(t *testing.T) *postgres.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	db, err := postgres.New(context.Background(), testConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	if _, err := db.DB.ExecContext(ctx,
		`TRUNCATE published_reports, topics, messages, conversations, processed_files, users RESTART IDENTITY CASCADE`,
	); err != nil {
		t.Fatalf("truncating test database: %v", err)
	}
	return db
}

func testConfig() config.PostgresConfig {
	return config.PostgresConfig{
		URL:             os.Getenv("TEST_DATABASE_URL"),
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "bibliofep_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "bibliofep"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 0,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
