// Package migrate moves data from the flat legacy keys into the chunked
// triplet collection.
//
// Every legacy key is migrated independently: its entries are transformed into
// records, merged into the current collection with the same dedup rules as
// live extraction, and the key is removed only once the merged collection is
// saved. A failed key is left in place and retried on the next run.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/echoes/pkg/chunked"
	"github.com/papercomputeco/echoes/pkg/extract"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/storage"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// KeyError reports the failure of one legacy key.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("migrating %s: %v", e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// Config is the configuration of a Migrator.
type Config struct {
	// Driver is the substrate holding the legacy keys.
	Driver storage.Driver

	// Store is the current triplet collection.
	Store *chunked.Store[triplet.Record]

	// Extractor normalizes legacy raw messages.
	Extractor *extract.Extractor

	// Logger is the provided slog logger.
	Logger *slog.Logger

	Now   func() time.Time
	NewID func() string
}

// Outcome describes the migration of one legacy key.
type Outcome struct {
	Key     string
	Found   bool
	Entries int
	Added   int
	Updated int
	Skipped int
	Err     error
}

// Report collects the outcomes of a run, in key order.
type Report struct {
	Outcomes []Outcome
}

// Added returns the number of records added across all keys.
func (r Report) Added() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Added
	}
	return n
}

// Migrated returns the keys that were migrated and removed.
func (r Report) Migrated() []string {
	var keys []string
	for _, o := range r.Outcomes {
		if o.Found && o.Err == nil {
			keys = append(keys, o.Key)
		}
	}
	return keys
}

// Migrator runs the legacy migrations.
type Migrator struct {
	driver    storage.Driver
	store     *chunked.Store[triplet.Record]
	extractor *extract.Extractor
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

type transform func(ctx context.Context, raw []byte, out *Outcome) ([]triplet.Record, error)

// New creates a Migrator.
func New(c Config) (*Migrator, error) {
	if c.Driver == nil || c.Store == nil {
		return nil, errors.New("migrator requires a driver and a record store")
	}
	if c.Extractor == nil {
		return nil, errors.New("migrator requires an extractor")
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}

	return &Migrator{
		driver:    c.Driver,
		store:     c.Store,
		extractor: c.Extractor,
		logger:    c.Logger,
		now:       c.Now,
		newID:     c.NewID,
	}, nil
}

// Run migrates every legacy key. The returned error joins the per-key
// failures; the report is complete either way.
func (m *Migrator) Run(ctx context.Context) (Report, error) {
	sources := []struct {
		key string
		fn  transform
	}{
		{LegacyMessagesKey, m.fromMessages},
		{LegacyTripletsKey, m.fromParsed},
		{LegacyOnChainKey, m.fromOnChain},
	}

	var (
		report Report
		errs   []error
	)
	for _, src := range sources {
		out := m.migrateKey(ctx, src.key, src.fn)
		report.Outcomes = append(report.Outcomes, out)
		if out.Err != nil {
			errs = append(errs, &KeyError{Key: src.key, Err: out.Err})
		}
	}

	return report, errors.Join(errs...)
}

func (m *Migrator) migrateKey(ctx context.Context, key string, fn transform) Outcome {
	out := Outcome{Key: key}

	raw, err := m.driver.Get(ctx, key)
	if storage.IsNotFound(err) {
		return out
	}
	if err != nil {
		out.Err = err
		m.logger.Warn("legacy key unreadable, keeping it", "key", key, "error", err)
		return out
	}
	out.Found = true

	records, err := fn(ctx, raw, &out)
	if err != nil {
		out.Err = err
		m.logger.Warn("legacy key undecodable, keeping it", "key", key, "error", err)
		return out
	}

	if len(records) > 0 {
		err = m.store.Update(ctx, func(current []triplet.Record) ([]triplet.Record, error) {
			merged, added, updated := mergeForward(current, records)
			out.Added, out.Updated = added, updated
			if added == 0 && updated == 0 {
				return nil, chunked.ErrNoChange
			}
			return merged, nil
		})
		if err != nil {
			out.Added, out.Updated = 0, 0
			out.Err = err
			m.logger.Warn("saving migrated records failed, keeping legacy key", "key", key, "error", err)
			return out
		}
	}

	if err := m.driver.Remove(ctx, key); err != nil {
		out.Err = fmt.Errorf("removing legacy key: %w", err)
		return out
	}

	m.logger.Info("migrated legacy key",
		"key", key,
		"entries", out.Entries,
		"added", out.Added,
		"updated", out.Updated,
		"skipped", out.Skipped,
	)
	return out
}

// fromMessages runs legacy raw messages through the live normalization.
func (m *Migrator) fromMessages(_ context.Context, raw []byte, out *Outcome) ([]triplet.Record, error) {
	entries, err := decodeList[legacyMessage](LegacyMessagesKey, raw)
	if err != nil {
		return nil, err
	}
	out.Entries = len(entries)

	var records []triplet.Record
	for _, e := range entries {
		msg := triplet.RawMessage{
			ID:         legacyMessageID(e.CreatedAt),
			ReceivedAt: millis(e.CreatedAt, m.now().UTC()),
			Text:       e.Content.Text,
		}

		candidates, err := m.extractor.Candidates(msg)
		if err != nil {
			out.Skipped++
			m.logger.Warn("skipping unparsable legacy message", "message_id", msg.ID, "error", err)
			continue
		}
		records = append(records, candidates...)
	}
	return records, nil
}

// fromParsed expands legacy parsed messages into one record per triplet.
func (m *Migrator) fromParsed(_ context.Context, raw []byte, out *Outcome) ([]triplet.Record, error) {
	entries, err := decodeList[legacyParsed](LegacyTripletsKey, raw)
	if err != nil {
		return nil, err
	}
	out.Entries = len(entries)

	now := m.now().UTC()
	var records []triplet.Record
	for _, e := range entries {
		sourceID := e.SourceMessageID
		if sourceID == "" {
			sourceID = legacyMessageID(e.CreatedAt)
		}

		for _, t := range e.Triplets {
			if t.Subject == "" || t.Predicate == "" || t.Object == "" {
				out.Skipped++
				continue
			}
			records = append(records, triplet.Record{
				ID:                m.newID(),
				Triplet:           t,
				SourceMessageID:   sourceID,
				Origin:            triplet.OriginDiscovered,
				Status:            triplet.StatusAtomOnly,
				Intention:         e.Intention,
				ObjectDescription: e.RawObjectDescription,
				ObjectURL:         e.RawObjectURL,
				ExtractedAt:       millis(e.ExtractedAt, now),
				Timestamp:         millis(e.CreatedAt, now),
			})
		}
	}
	return records, nil
}

// fromOnChain carries legacy published entries over with their ledger refs.
func (m *Migrator) fromOnChain(_ context.Context, raw []byte, out *Outcome) ([]triplet.Record, error) {
	entries, err := decodeList[legacyOnChain](LegacyOnChainKey, raw)
	if err != nil {
		return nil, err
	}
	out.Entries = len(entries)

	now := m.now().UTC()
	var records []triplet.Record
	for _, e := range entries {
		if e.Triplet.Subject == "" || e.Triplet.Predicate == "" || e.Triplet.Object == "" {
			out.Skipped++
			continue
		}

		id := e.ID
		if id == "" {
			id = m.newID()
		}
		ts := millis(e.Timestamp, now)

		r := triplet.Record{
			ID:              id,
			Triplet:         e.Triplet,
			SourceMessageID: legacyMessageID(e.Timestamp),
			Origin:          legacyOrigin(e.Source),
			Status:          legacyStatus(e),
			Refs: triplet.LedgerRefs{
				Object: e.AtomVaultID,
				Tx:     e.TxHash,
			},
			ObjectURL:   e.URL,
			ExtractedAt: ts,
			Timestamp:   ts,
		}
		if e.OriginalMessage != nil {
			r.ObjectDescription = e.OriginalMessage.RawObjectDescription
			if e.OriginalMessage.RawObjectURL != "" {
				r.ObjectURL = e.OriginalMessage.RawObjectURL
			}
		}
		records = append(records, r)
	}
	return records, nil
}

// mergeForward merges incoming into current. A novel triplet is appended; a
// known triplet is only touched when the incoming record is further along the
// lifecycle, in which case the existing record adopts its status, origin and
// refs while keeping its id.
func mergeForward(current, incoming []triplet.Record) ([]triplet.Record, int, int) {
	byKey := make(map[string]int, len(current))
	for i, r := range current {
		byKey[r.Triplet.Key()] = i
	}

	added, updated := 0, 0
	for _, in := range incoming {
		i, ok := byKey[in.Triplet.Key()]
		if !ok {
			byKey[in.Triplet.Key()] = len(current)
			current = append(current, in)
			added++
			continue
		}

		existing := &current[i]
		if existing.Status.InFlight() || in.Status.Rank() <= existing.Status.Rank() {
			continue
		}
		existing.Status = in.Status
		existing.Origin = in.Origin
		existing.Refs = in.Refs
		updated++
	}
	return current, added, updated
}
