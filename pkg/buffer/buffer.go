// Package buffer holds inbound agent messages until their triplets are
// durably persisted.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/papercomputeco/echoes/pkg/chunked"
	"github.com/papercomputeco/echoes/pkg/extract"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/storage"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// DefaultCollection is the message buffer collection.
var DefaultCollection = chunked.Collection{Name: "sofiaMessagesBuffer", ChunkSize: 20}

// DefaultMaxTriplets is the default retention ceiling of the triplet collection.
const DefaultMaxTriplets = 100

// ErrDrainInProgress is returned when Drain is called while another drain runs.
var ErrDrainInProgress = errors.New("drain already in progress")

// Extractor persists the triplets of one message.
type Extractor interface {
	Extract(ctx context.Context, msg triplet.RawMessage) (extract.Result, error)
}

// Config is the configuration of a Buffer.
type Config struct {
	// Messages is the buffered message collection.
	Messages *chunked.Store[triplet.RawMessage]

	// Triplets is the record collection retention is applied to.
	Triplets *chunked.Store[triplet.Record]

	// Extractor turns each message into persisted records.
	Extractor Extractor

	// MaxTriplets is the retention ceiling. Zero means DefaultMaxTriplets.
	MaxTriplets int

	// Logger is the provided slog logger.
	Logger *slog.Logger
}

// Failure pairs a message that stayed pending with the reason.
type Failure struct {
	MessageID string
	Err       error
}

// DrainResult describes one drain pass.
type DrainResult struct {
	// Processed lists the ids removed from the buffer, in buffer order.
	Processed []string

	// Pending is the buffer content left for the next drain.
	Pending []triplet.RawMessage

	// Added are the records persisted by this drain.
	Added []triplet.Record

	// Failures lists the messages kept for retry.
	Failures []Failure

	// Retained is the number of records dropped by retention.
	Retained int

	// BufferCleared is set when a quota error forced the buffer to be cleared.
	BufferCleared bool
}

// Buffer is the message buffer.
type Buffer struct {
	messages    *chunked.Store[triplet.RawMessage]
	triplets    *chunked.Store[triplet.Record]
	extractor   Extractor
	maxTriplets int
	logger      *slog.Logger

	// draining admits one drain at a time.
	draining *semaphore.Weighted
}

// New creates a Buffer.
func New(c Config) (*Buffer, error) {
	if c.Messages == nil || c.Triplets == nil {
		return nil, errors.New("buffer requires message and triplet stores")
	}
	if c.Extractor == nil {
		return nil, errors.New("buffer requires an extractor")
	}
	if c.MaxTriplets <= 0 {
		c.MaxTriplets = DefaultMaxTriplets
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	return &Buffer{
		messages:    c.Messages,
		triplets:    c.Triplets,
		extractor:   c.Extractor,
		maxTriplets: c.MaxTriplets,
		logger:      c.Logger,
		draining:    semaphore.NewWeighted(1),
	}, nil
}

// Enqueue appends msg to the buffer. It returns false without writing when a
// message with the same id is already buffered.
func (b *Buffer) Enqueue(ctx context.Context, msg triplet.RawMessage) (bool, error) {
	if msg.ID == "" {
		return false, errors.New("message id is required")
	}
	msg.Processed = false

	added := false
	err := b.messages.Update(ctx, func(msgs []triplet.RawMessage) ([]triplet.RawMessage, error) {
		for _, m := range msgs {
			if m.ID == msg.ID {
				return nil, chunked.ErrNoChange
			}
		}
		added = true
		return append(msgs, msg), nil
	})
	if err != nil {
		return false, fmt.Errorf("buffering message %s: %w", msg.ID, err)
	}

	if added {
		b.logger.Debug("message buffered", "message_id", msg.ID)
	} else {
		b.logger.Debug("duplicate message ignored", "message_id", msg.ID)
	}
	return added, nil
}

// Pending returns the buffered messages not yet processed.
func (b *Buffer) Pending(ctx context.Context) ([]triplet.RawMessage, error) {
	msgs, err := b.messages.Load(ctx)
	if err != nil {
		return nil, err
	}

	pending := msgs[:0]
	for _, m := range msgs {
		if !m.Processed {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Drain extracts every pending message in buffer order. Messages whose
// extraction succeeds, with or without triplets, are removed from the buffer
// in one write; failed messages stay for the next drain. Only one drain runs
// at a time; a concurrent call returns ErrDrainInProgress.
func (b *Buffer) Drain(ctx context.Context) (DrainResult, error) {
	if !b.draining.TryAcquire(1) {
		return DrainResult{}, ErrDrainInProgress
	}
	defer b.draining.Release(1)

	var result DrainResult

	msgs, err := b.messages.Load(ctx)
	if err != nil {
		return result, fmt.Errorf("loading message buffer: %w", err)
	}

	processed := make(map[string]bool)
	var failed []triplet.RawMessage
	for _, m := range msgs {
		if m.Processed {
			processed[m.ID] = true
			continue
		}

		res, err := b.extract(ctx, m, &result)
		if err != nil {
			b.logger.Warn("message kept for retry", "message_id", m.ID, "error", err)
			result.Failures = append(result.Failures, Failure{MessageID: m.ID, Err: err})
			failed = append(failed, m)
			continue
		}

		processed[m.ID] = true
		result.Processed = append(result.Processed, m.ID)
		result.Added = append(result.Added, res.Added...)
	}

	// Retention follows the collection size, so a collection that grew past
	// the ceiling some other way (a migration) is trimmed on the next drain.
	removed, err := b.triplets.Retain(ctx, RetainNewest(b.maxTriplets))
	if err != nil {
		b.logger.Warn("triplet retention failed", "error", err)
	}
	result.Retained = removed

	err = b.messages.Update(ctx, func(current []triplet.RawMessage) ([]triplet.RawMessage, error) {
		kept := make([]triplet.RawMessage, 0, len(current))
		for _, m := range current {
			if !processed[m.ID] {
				kept = append(kept, m)
			}
		}

		// A cleared buffer lost the failed messages; put them back.
		if result.BufferCleared {
			for _, m := range failed {
				if !containsMessage(kept, m.ID) {
					kept = append(kept, m)
				}
			}
		}

		result.Pending = kept
		if len(kept) == len(current) && !result.BufferCleared {
			return nil, chunked.ErrNoChange
		}
		return kept, nil
	})
	if err != nil {
		return result, fmt.Errorf("rewriting message buffer: %w", err)
	}

	b.logger.Info("drained message buffer",
		"processed", len(result.Processed),
		"pending", len(result.Pending),
		"added", len(result.Added),
		"failed", len(result.Failures),
	)
	return result, nil
}

// extract runs the extractor and, on a quota error, clears the message buffer
// and retries once.
func (b *Buffer) extract(ctx context.Context, m triplet.RawMessage, result *DrainResult) (extract.Result, error) {
	res, err := b.extractor.Extract(ctx, m)
	if err == nil || !storage.IsQuotaExceeded(err) || result.BufferCleared {
		return res, err
	}

	b.logger.Warn("storage quota exceeded, clearing message buffer", "message_id", m.ID, "error", err)
	if cerr := b.messages.Clear(ctx); cerr != nil {
		return res, errors.Join(err, cerr)
	}
	result.BufferCleared = true

	return b.extractor.Extract(ctx, m)
}

// RetainNewest keeps the limit most recently extracted records. Records with
// an outstanding ledger call are never dropped.
func RetainNewest(limit int) func([]triplet.Record) []triplet.Record {
	return chunked.KeepNewest(limit,
		func(a, b triplet.Record) int { return a.ExtractedAt.Compare(b.ExtractedAt) },
		func(r triplet.Record) bool { return r.Status.InFlight() },
	)
}

func containsMessage(msgs []triplet.RawMessage, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}
