// Package storage defines the flat key/value substrate that echoes persists
// everything into.
//
// The substrate mirrors the storage area of the host platform the triplets were
// first collected on: string keys, opaque values and a ceiling on the size of
// any single value. Higher layers (see pkg/chunked) are responsible for
// splitting collections so that no entry exceeds that ceiling.
package storage

import "context"

// Driver defines the interface for a key/value storage backend.
// Implementations are not required to be transactional across keys.
type Driver interface {
	// Get returns the value stored at key, or NotFoundError if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key, replacing any previous value. It returns
	// QuotaExceededError when the value or the store exceeds its capacity.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys returns all keys starting with prefix, sorted ascending.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close closes the store and releases any resources.
	Close() error
}
