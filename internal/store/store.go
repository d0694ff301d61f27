// Package store provides the persisted key-value blob store the rest of the
// application keeps its state in.
package store

import (
	"context"
)

// Store is a string key to string blob store. Get reports a miss with
// ok=false and a nil error. Implementations are safe for concurrent use but
// offer no transactions across keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by the configuration.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)
