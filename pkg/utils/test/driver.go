package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/echoes/pkg/storage"
)

// ErrInjected is returned by FaultyDriver for injected failures.
var ErrInjected = errors.New("injected storage failure")

// FaultyDriver wraps a storage.Driver and fails selected operations.
type FaultyDriver struct {
	storage.Driver

	mu sync.Mutex

	// FailGet lists keys whose Get returns ErrInjected.
	FailGet map[string]bool

	// FailSet lists keys whose Set returns ErrInjected.
	FailSet map[string]bool

	// FailRemove lists keys whose Remove returns ErrInjected.
	FailRemove map[string]bool

	// SetErr, when non-nil, is consulted before every Set and its result
	// returned if non-nil.
	SetErr func(key string, value []byte) error

	// Sets records every key passed to Set, in order.
	Sets []string

	// Removes records every key passed to Remove, in order.
	Removes []string
}

// NewFaultyDriver wraps d with no failures configured.
func NewFaultyDriver(d storage.Driver) *FaultyDriver {
	return &FaultyDriver{
		Driver:     d,
		FailGet:    make(map[string]bool),
		FailSet:    make(map[string]bool),
		FailRemove: make(map[string]bool),
	}
}

func (f *FaultyDriver) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.FailGet[key]
	f.mu.Unlock()

	if fail {
		return nil, ErrInjected
	}
	return f.Driver.Get(ctx, key)
}

func (f *FaultyDriver) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.Sets = append(f.Sets, key)
	fail := f.FailSet[key]
	hook := f.SetErr
	f.mu.Unlock()

	if fail {
		return ErrInjected
	}
	if hook != nil {
		if err := hook(key, value); err != nil {
			return err
		}
	}
	return f.Driver.Set(ctx, key, value)
}

func (f *FaultyDriver) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	f.Removes = append(f.Removes, key)
	fail := f.FailRemove[key]
	f.mu.Unlock()

	if fail {
		return ErrInjected
	}
	return f.Driver.Remove(ctx, key)
}

// Reset clears recorded calls.
func (f *FaultyDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sets = nil
	f.Removes = nil
}
