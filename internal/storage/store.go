// Package storage provides the small durable key/value store holding the
// bot's pairings. Backends are chosen by DSN.
package storage

import (
	"context"
	"fmt"
	"strings"

	"spamfightbot/internal/security"
)

// Store is a durable string key/value map
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// All returns a snapshot of every stored pair
	All(ctx context.Context) (map[string]string, error)
	// Apply writes sets and removes deletes as one unit: either every
	// change lands or none does
	Apply(ctx context.Context, sets map[string]string, deletes []string) error
	Close() error
}

// Backend names reported by Kind
const (
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindRedis    = "redis"
	KindMemory   = "memory"
)

// Kind reports which backend a DSN selects
func Kind(dsn string) string {
	switch {
	case dsn == "memory:" || dsn == ":memory:":
		return KindMemory
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return KindRedis
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return KindPostgres
	default:
		return KindSQLite
	}
}

// Open connects to the backend selected by dsn and prepares its schema
func Open(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store DSN cannot be empty")
	}

	switch Kind(dsn) {
	case KindMemory:
		return NewMemoryStore(), nil
	case KindRedis:
		return NewRedisStore(ctx, dsn)
	case KindPostgres:
		return NewPostgresStore(ctx, dsn)
	default:
		path := strings.TrimPrefix(dsn, "sqlite://")
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid store path: %w", err)
		}
		return NewSQLiteStore(ctx, path)
	}
}
