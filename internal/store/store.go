// Package store is the Postgres-backed persistence adapter. It
// replaces the original Python server's DbUtils-wrapped raw SQL
// (commands.py / queries.py) with typed methods on a Store that
// wraps *sql.DB, the same shape the teacher's internal/database.DB
// uses.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"predictrix/server/internal/config"
)

// Store holds the connection pool for every table the core touches:
// Users, Chats, Assertions.
type Store struct {
	*sql.DB
}

// Open connects to Postgres and verifies connectivity with a bounded
// number of retries, mirroring the teacher's NewConnection container
// start-up tolerance.
func Open(cfg *config.Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	maxConns := cfg.Database.MaxConnections
	if maxConns <= 0 {
		maxConns = 25
	}
	lifetime := time.Duration(cfg.Database.ConnMaxLifetime) * time.Second
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if lastErr = db.PingContext(ctx); lastErr == nil {
			break
		}
		slog.Warn("database connection attempt failed", "attempt", attempt, "error", lastErr)
		if attempt < 3 {
			time.Sleep(2 * time.Second)
		}
	}
	if lastErr != nil {
		db.Close()
		return nil, fmt.Errorf("store: connect after retries: %w", lastErr)
	}

	slog.Info("connected to postgres")
	return &Store{db}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// EnsureSchema creates the Users/Chats/Assertions tables when they do
// not already exist. Production deployments are expected to run this
// once via init scripts, same as the teacher's data/migrations
// approach; this method exists for local/dev convenience.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id      TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	photo_url    TEXT NOT NULL DEFAULT '',
	chats        JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS chats (
	id                     BIGSERIAL PRIMARY KEY,
	name                   TEXT NOT NULL,
	last_message           TEXT NOT NULL DEFAULT '',
	members                JSONB NOT NULL DEFAULT '[]',
	messages               JSONB NOT NULL DEFAULT '[]',
	score_sum_per_user     JSONB NOT NULL DEFAULT '{}',
	predictions_per_user   JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS assertions (
	id                         BIGSERIAL PRIMARY KEY,
	user_id                    TEXT NOT NULL,
	chat_id                    BIGINT NOT NULL REFERENCES chats(id),
	text                       TEXT NOT NULL,
	predictions                JSONB NOT NULL DEFAULT '{}',
	votes                      JSONB NOT NULL DEFAULT '{}',
	validation_date            TIMESTAMPTZ NOT NULL,
	casting_forecast_deadline  TIMESTAMPTZ NOT NULL,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed                  BOOLEAN NOT NULL DEFAULT false,
	final_answer               BOOLEAN NOT NULL DEFAULT false
);
`
	_, err := s.ExecContext(ctx, schema)
	return err
}
