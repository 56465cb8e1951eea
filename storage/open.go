package storage

import (
	"context"
	"fmt"

	"room-triage/config"
)

// Open builds the backend selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	limit := cfg.StoreMaxValueBytes
	if limit < 16 {
		return nil, fmt.Errorf("storage: STORE_MAX_VALUE_BYTES must be at least 16, got %d", limit)
	}

	switch cfg.StoreBackend {
	case "", "sqlite":
		return OpenSQLite(cfg.SQLitePath, limit)
	case "postgres":
		return NewPostgresBackend(cfg.DSN(), limit)
	case "redis":
		return OpenRedis(ctx, cfg.RedisURL, limit)
	case "memory":
		return NewMemoryBackend(limit), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.StoreBackend)
	}
}
