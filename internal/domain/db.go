package domain

import "context"

// RecordStore holds one opaque durable unit per user. Implementations must
// allow concurrent writes for different users without a shared lock.
type RecordStore interface {
	// Get returns ErrNotFound when the user has no record yet.
	Get(ctx context.Context, userID int64) ([]byte, error)
	Put(ctx context.Context, userID int64, data []byte) error
}

// Storage is a complete persistence backend. Each implementation (files,
// SQLite) owns its own layout and migration strategy, so the backend is
// swappable from configuration.
type Storage interface {
	Records() RecordStore
	Logs() LogStore
	Migrate(ctx context.Context) error
	Close() error
}
