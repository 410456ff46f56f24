// Package itf holds integration test helpers backed by a real Postgres.
package itf

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/legacy-migrator/pkg/configuration"
)

const (
	// PostgreSQL identifier limit
	maxDBNameLength = 63
	// underscore plus 8 hex chars
	hashSuffixLength = 9
)

// NewTestDB creates a fresh database named after the test and returns a pool
// connected to it. The database is dropped on cleanup. Outside CI the test is
// skipped when Postgres is not reachable.
func NewTestDB(tb testing.TB, ctx context.Context) *pgxpool.Pool {
	tb.Helper()
	isCI := os.Getenv("CI") != ""
	fail := func(msg string, err error) {
		if isCI {
			tb.Fatalf("%s: %v", msg, err)
		}
		tb.Skipf("%s; skipping integration test: %v", msg, err)
	}

	dbName := sanitizeDBName(tb.Name())
	adminConn, err := pgx.Connect(ctx, DbOpts("postgres"))
	if err != nil {
		fail("postgres is not reachable", err)
	}
	tb.Cleanup(func() { _ = adminConn.Close(context.Background()) })

	if _, err := adminConn.Exec(ctx, "DROP DATABASE IF EXISTS "+dbName); err != nil {
		fail("failed to drop test database", err)
	}
	if _, err := adminConn.Exec(ctx, "CREATE DATABASE "+dbName); err != nil {
		fail("failed to create test database", err)
	}

	pool := NewPool(DbOpts(dbName))
	tb.Cleanup(func() {
		pool.Close()
		_, _ = adminConn.Exec(context.Background(), "DROP DATABASE IF EXISTS "+dbName)
	})
	return pool
}

func NewPool(dbOpts string) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	config, err := pgxpool.ParseConfig(dbOpts)
	if err != nil {
		panic(err)
	}
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = time.Minute * 5
	config.MaxConnIdleTime = time.Second * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		panic(fmt.Errorf("failed to create database pool: %w", err))
	}
	return pool
}

func DbOpts(name string) string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, name, c.Database.Password,
	)
}

// sanitizeDBName lowercases a test name, replaces everything that is not a
// letter, digit or underscore and keeps the result within PostgreSQL's
// identifier limit.
func sanitizeDBName(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, strings.ToLower(name))

	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "test_db"
	}
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "t_" + sanitized
	}
	if len(sanitized) <= maxDBNameLength {
		return sanitized
	}
	return truncateWithHash(sanitized, name)
}

// truncateWithHash keeps the name unique after truncation by appending a hash of the original.
func truncateWithHash(sanitized, original string) string {
	sum := sha256.Sum256([]byte(original))
	hash := fmt.Sprintf("%x", sum[:])[:8]
	truncated := strings.TrimRight(sanitized[:maxDBNameLength-hashSuffixLength], "_")
	return truncated + "_" + hash
}
