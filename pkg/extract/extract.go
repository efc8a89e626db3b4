// Package extract turns raw agent messages into new, deduplicated triplet
// records.
//
// Parsing is delegated to a parser.Parser. The extractor owns the policy
// around it: a candidate is discarded when a record with a structurally equal
// triplet already exists in any lifecycle state, and the surviving records of
// one message are persisted with a single write.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/echoes/pkg/chunked"
	"github.com/papercomputeco/echoes/pkg/eventstream"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/parser"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// DefaultCollection is the triplet record collection. Records carry message
// metadata, so chunks are kept small.
var DefaultCollection = chunked.Collection{Name: "extractedTriplets", ChunkSize: 5}

// ParseError reports that a message could not be parsed. The message should
// stay buffered and be retried.
type ParseError struct {
	MessageID string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing message %s: %v", e.MessageID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Config is the configuration of an Extractor.
type Config struct {
	// Store is the triplet record collection.
	Store *chunked.Store[triplet.Record]

	// Parser turns message text into candidate triplets.
	Parser parser.Parser

	// Publisher receives extraction events. Optional.
	Publisher eventstream.Publisher

	// Logger is the provided slog logger.
	Logger *slog.Logger

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Result describes the outcome of extracting one message.
type Result struct {
	MessageID  string
	Added      []triplet.Record
	Duplicates int
}

// Extractor converts raw messages into persisted triplet records.
type Extractor struct {
	store     *chunked.Store[triplet.Record]
	parser    parser.Parser
	publisher eventstream.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// New creates an Extractor.
func New(c Config) (*Extractor, error) {
	if c.Store == nil {
		return nil, errors.New("extractor requires a record store")
	}
	if c.Parser == nil {
		return nil, errors.New("extractor requires a parser")
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

	return &Extractor{
		store:     c.Store,
		parser:    c.Parser,
		publisher: c.Publisher,
		logger:    c.Logger,
		now:       c.Now,
		newID:     c.NewID,
	}, nil
}

// Candidates parses msg into new atom-only records without persisting them.
// Repeated triplets within the message are collapsed. A message with nothing
// to extract yields no candidates and no error.
func (e *Extractor) Candidates(msg triplet.RawMessage) ([]triplet.Record, error) {
	parsed, err := e.parser.Parse(msg.Text, msg.ReceivedAt)
	if err != nil {
		return nil, &ParseError{MessageID: msg.ID, Err: err}
	}
	if parsed == nil || len(parsed.Triplets) == 0 {
		return nil, nil
	}

	now := e.now().UTC()
	ts := msg.ReceivedAt
	if ts.IsZero() {
		ts = now
	}

	records := make([]triplet.Record, 0, len(parsed.Triplets))
	for _, t := range parsed.Triplets {
		if triplet.Contains(records, t) {
			continue
		}
		records = append(records, triplet.Record{
			ID:                e.newID(),
			Triplet:           t,
			SourceMessageID:   msg.ID,
			Origin:            triplet.OriginDiscovered,
			Status:            triplet.StatusAtomOnly,
			Intention:         parsed.Intention,
			ObjectDescription: parsed.RawObjectDescription,
			ObjectURL:         parsed.RawObjectURL,
			ExtractedAt:       now,
			Timestamp:         ts,
		})
	}
	return records, nil
}

// Merge appends the candidates whose triplet is not already present in
// existing, returning the merged collection and the records that were added.
func Merge(existing, candidates []triplet.Record) ([]triplet.Record, []triplet.Record) {
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, r := range existing {
		seen[r.Triplet.Key()] = struct{}{}
	}

	var added []triplet.Record
	for _, c := range candidates {
		key := c.Triplet.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		added = append(added, c)
	}

	if len(added) == 0 {
		return existing, nil
	}
	return append(existing, added...), added
}

// Extract parses msg and persists its novel triplets in one write.
func (e *Extractor) Extract(ctx context.Context, msg triplet.RawMessage) (Result, error) {
	result := Result{MessageID: msg.ID}

	candidates, err := e.Candidates(msg)
	if err != nil {
		return result, err
	}
	if len(candidates) == 0 {
		e.logger.Debug("message yielded no triplets", "message_id", msg.ID)
		return result, nil
	}

	err = e.store.Update(ctx, func(records []triplet.Record) ([]triplet.Record, error) {
		merged, added := Merge(records, candidates)
		result.Added = added
		if len(added) == 0 {
			return nil, chunked.ErrNoChange
		}
		return merged, nil
	})
	if err != nil {
		return Result{MessageID: msg.ID}, fmt.Errorf("persisting triplets of message %s: %w", msg.ID, err)
	}
	result.Duplicates = len(candidates) - len(result.Added)

	e.logger.Info("extracted triplets",
		"message_id", msg.ID,
		"added", len(result.Added),
		"duplicates", result.Duplicates,
	)

	for _, r := range result.Added {
		eventstream.Emit(ctx, e.publisher, e.logger, eventstream.NewEvent(eventstream.EventTypeTripletExtracted, r))
	}

	return result, nil
}
