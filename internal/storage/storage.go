package storage

import "context"

// KeyValueStore defines the interface for the durable key-value layer the
// queue persists into. This allows us to swap storage implementations
// (BadgerDB on disk, in-memory for tests) without changing the queue logic
// that uses it.
type KeyValueStore interface {
	// Get returns the value stored under key, or (nil, nil) if the key is
	// absent. Absence is not an error.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value atomically.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the value under key. Removing an absent key is a no-op.
	Remove(ctx context.Context, key string) error

	// Close gracefully shuts down the store.
	Close() error
}
