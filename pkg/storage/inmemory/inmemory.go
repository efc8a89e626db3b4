// Package inmemory provides a map-backed storage.Driver for tests and
// ephemeral runs.
package inmemory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/echoes/pkg/storage"
)

// Config holds the capacity limits of the in-memory driver.
type Config struct {
	// MaxValueBytes caps the size of a single value. Zero disables the check.
	MaxValueBytes int

	// MaxTotalBytes caps the sum of all stored values. Zero disables the check.
	MaxTotalBytes int
}

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	config Config

	// mu is a read write sync mutex for locking the mapping of entries
	mu sync.RWMutex

	// entries maps key -> a private copy of the stored value
	entries map[string][]byte
	total   int
}

// NewDriver creates a new in-memory driver without limits.
func NewDriver() *Driver {
	return NewDriverWithConfig(Config{})
}

// NewDriverWithConfig creates a new in-memory driver with the given limits.
func NewDriverWithConfig(config Config) *Driver {
	return &Driver{
		config:  config,
		entries: make(map[string][]byte),
	}
}

// Get returns a copy of the value stored at key.
func (d *Driver) Get(_ context.Context, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	value, ok := d.entries[key]
	if !ok {
		return nil, storage.NotFoundError{Key: key}
	}

	return slices.Clone(value), nil
}

// Set stores a copy of value at key.
func (d *Driver) Set(_ context.Context, key string, value []byte) error {
	if err := storage.CheckValueSize(key, value, d.config.MaxValueBytes); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.total - len(d.entries[key]) + len(value)
	if d.config.MaxTotalBytes > 0 && next > d.config.MaxTotalBytes {
		return storage.QuotaExceededError{Key: key, Size: next, Limit: d.config.MaxTotalBytes}
	}

	d.entries[key] = slices.Clone(value)
	d.total = next
	return nil
}

// Remove deletes key if present.
func (d *Driver) Remove(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if value, ok := d.entries[key]; ok {
		d.total -= len(value)
		delete(d.entries, key)
	}
	return nil
}

// Keys returns all keys with the given prefix in ascending order.
func (d *Driver) Keys(_ context.Context, prefix string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Count returns the number of keys in the in-memory store.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// TotalBytes returns the sum of all stored value sizes.
func (d *Driver) TotalBytes() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.total
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
