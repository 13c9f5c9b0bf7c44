// internal/database/db.go

// Package database persists finished match results to Postgres. Persistence is
// optional: when no DATABASE_URL (or PG_* set) is configured the pool stays
// nil and every write is a no-op, since all live coordination state belongs to
// the ephemeral store.
package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var DB *pgxpool.Pool

// Enabled reports whether durable persistence is configured.
func Enabled() bool { return DB != nil }

// ConnectDB opens the pgx pool from DATABASE_URL, or from the PG_* variables
// when DATABASE_URL is unset. Returns an error instead of exiting so the
// caller can decide to run without persistence.
func ConnectDB(ctx context.Context) error {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		if os.Getenv("PG_HOST") == "" {
			return fmt.Errorf("no database configured")
		}
		connStr = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			os.Getenv("PG_HOST"),
			os.Getenv("PG_PORT"),
			os.Getenv("PG_DATABASE"),
		)
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return fmt.Errorf("unable to parse pgx config: %w", err)
	}

	DB, err = pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := DB.Ping(pingCtx); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("db ping error: %w", err)
	}
	return nil
}

// Close releases the pool, if any.
func Close() {
	if DB != nil {
		DB.Close()
		DB = nil
	}
}
