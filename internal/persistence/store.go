package persistence

import (
	"context"
	"fmt"
	"strings"

	"base-autobot/internal/models"
)

// DefaultStateKey is the key the bot state is stored under when none is configured.
const DefaultStateKey = "bot_state"

// Store defines the interface for state persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, SQLite,
// Redis, Postgres, in-memory) from the rest of the application. Values are opaque
// strings; serialization belongs to the caller.
type Store interface {
	// Get returns the value stored under key.
	// If the key is not found, it returns (nil, nil).
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the value stored under key.
	Put(ctx context.Context, key string, value []byte) error

	// Close releases the underlying connection or database handle.
	Close() error
}

// Open creates the store selected by cfg.Backend.
func Open(ctx context.Context, cfg models.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "badger":
		return NewBadgerStore(cfg.Path)
	case "redis":
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
