// Package cleanup implements the user-requested purge of local state: the
// message buffer is emptied, the triplet collection is cut down to its newest
// records and leftover legacy keys are removed.
//
// Records with an outstanding ledger call are always kept, whatever the
// requested size.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/echoes/pkg/chunked"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/migrate"
	"github.com/papercomputeco/echoes/pkg/storage"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// DefaultKeep is the number of records a cleanup keeps unless told otherwise.
const DefaultKeep = 10

// LegacyKeys are the flat keys removed by a cleanup.
var LegacyKeys = []string{
	migrate.LegacyMessagesKey,
	migrate.LegacyTripletsKey,
	migrate.LegacyOnChainKey,
}

// Config is the configuration of a Cleaner.
type Config struct {
	// Driver is the substrate holding the legacy keys.
	Driver storage.Driver

	// Messages is the message buffer collection.
	Messages *chunked.Store[triplet.RawMessage]

	// Triplets is the record collection.
	Triplets *chunked.Store[triplet.Record]

	// Logger is the provided slog logger.
	Logger *slog.Logger
}

// Options selects how much a cleanup removes.
type Options struct {
	// Keep is the number of most recently extracted records to keep. Zero
	// removes every record that is not in flight.
	Keep int
}

// Result describes one cleanup.
type Result struct {
	MessagesCleared   int      `json:"messagesCleared"`
	TripletsRemoved   int      `json:"tripletsRemoved"`
	TripletsKept      int      `json:"tripletsKept"`
	LegacyKeysRemoved []string `json:"legacyKeysRemoved"`
}

// Cleaner purges local state on request.
type Cleaner struct {
	driver   storage.Driver
	messages *chunked.Store[triplet.RawMessage]
	triplets *chunked.Store[triplet.Record]
	logger   *slog.Logger
}

// New creates a Cleaner.
func New(c Config) (*Cleaner, error) {
	if c.Driver == nil || c.Messages == nil || c.Triplets == nil {
		return nil, errors.New("cleaner requires a driver, a message store and a record store")
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	return &Cleaner{
		driver:   c.Driver,
		messages: c.Messages,
		triplets: c.Triplets,
		logger:   c.Logger,
	}, nil
}

// Run empties the message buffer, keeps the opts.Keep newest records plus any
// in flight, and removes the legacy keys. Each step runs even when an earlier
// one failed; the returned error joins the failures.
func (c *Cleaner) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Keep < 0 {
		return Result{}, fmt.Errorf("invalid keep %d", opts.Keep)
	}

	var (
		result Result
		errs   []error
	)

	err := c.messages.Update(ctx, func(msgs []triplet.RawMessage) ([]triplet.RawMessage, error) {
		result.MessagesCleared = len(msgs)
		if len(msgs) == 0 {
			return nil, chunked.ErrNoChange
		}
		return nil, nil
	})
	if err != nil {
		result.MessagesCleared = 0
		errs = append(errs, fmt.Errorf("clearing message buffer: %w", err))
	}

	removed, err := c.triplets.Retain(ctx, chunked.KeepNewest(opts.Keep,
		func(a, b triplet.Record) int { return a.ExtractedAt.Compare(b.ExtractedAt) },
		func(r triplet.Record) bool { return r.Status.InFlight() },
	))
	if err != nil {
		errs = append(errs, fmt.Errorf("trimming triplets: %w", err))
	}
	result.TripletsRemoved = removed

	if records, err := c.triplets.Load(ctx); err == nil {
		result.TripletsKept = len(records)
	}

	for _, key := range LegacyKeys {
		if _, err := c.driver.Get(ctx, key); err != nil {
			if !storage.IsNotFound(err) {
				errs = append(errs, fmt.Errorf("reading %s: %w", key, err))
			}
			continue
		}
		if err := c.driver.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", key, err))
			continue
		}
		result.LegacyKeysRemoved = append(result.LegacyKeysRemoved, key)
	}

	c.logger.Info("cleanup finished",
		"messages_cleared", result.MessagesCleared,
		"triplets_removed", result.TripletsRemoved,
		"triplets_kept", result.TripletsKept,
		"legacy_keys_removed", result.LegacyKeysRemoved,
	)
	return result, errors.Join(errs...)
}
