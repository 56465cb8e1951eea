package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresBackend persists records to a PostgreSQL key-value table.
type PostgresBackend struct {
	db    *sql.DB
	limit int
}

// NewPostgresBackend opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresBackend.
func NewPostgresBackend(dsn string, limit int) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pb := &PostgresBackend{db: db, limit: limit}
	if err := pb.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pb, nil
}

func (pb *PostgresBackend) migrate() error {
	_, err := pb.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_records (
			record_key   TEXT        PRIMARY KEY,
			record_value TEXT        NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (pb *PostgresBackend) Put(ctx context.Context, key, value string) error {
	if len(value) > pb.limit {
		return fmt.Errorf("postgres: value for %q is %d bytes, limit %d", key, len(value), pb.limit)
	}
	_, err := pb.db.ExecContext(ctx, `
		INSERT INTO kv_records (record_key, record_value)
		VALUES ($1, $2)
		ON CONFLICT (record_key) DO UPDATE
		SET record_value = EXCLUDED.record_value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("postgres: put %q: %w", key, err)
	}
	return nil
}

func (pb *PostgresBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := pb.db.QueryRowContext(ctx,
		`SELECT record_value FROM kv_records WHERE record_key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres: get %q: %w", key, err)
	}
	return value, true, nil
}

func (pb *PostgresBackend) Delete(ctx context.Context, key string) error {
	if _, err := pb.db.ExecContext(ctx, `DELETE FROM kv_records WHERE record_key = $1`, key); err != nil {
		return fmt.Errorf("postgres: delete %q: %w", key, err)
	}
	return nil
}

func (pb *PostgresBackend) MaxValueSize() int { return pb.limit }

func (pb *PostgresBackend) Close() error {
	return pb.db.Close()
}
