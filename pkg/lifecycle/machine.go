// Package lifecycle drives triplet records from extraction to the ledger.
//
//	atom-only -> checking -> ready -> publishing -> published | exists-on-chain
//
// Statuses only move forward. The exceptions are the rollbacks after a failed
// ledger call: checking returns to atom-only and publishing returns to the
// status it was entered from. Every mutation is a read-modify-write of the
// freshly loaded collection through chunked.Store.Update, and at most one
// publish (single or batch) is in flight at any time.
//
// A publish is two writes around one ledger call. If the ledger accepts the
// triplet and the second write fails, the record is left publishing and a
// *WriteBackError carries the transaction reference. Recover rolls such a
// record back on the next start; publishing it again resolves it to
// exists-on-chain.
package lifecycle

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/papercomputeco/echoes/pkg/chunked"
	"github.com/papercomputeco/echoes/pkg/eventstream"
	"github.com/papercomputeco/echoes/pkg/ledger"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// batchHolder is the guard holder name used by BatchPublish.
const batchHolder = "batch"

// Config is the configuration of a Machine.
type Config struct {
	// Store is the triplet record collection.
	Store *chunked.Store[triplet.Record]

	// Ledger is the ledger client.
	Ledger ledger.Client

	// Guard serializes publishes. A new Guard is created when nil.
	Guard *Guard

	// Publisher receives publish events. Optional.
	Publisher eventstream.Publisher

	// Logger is the provided slog logger.
	Logger *slog.Logger

	Now func() time.Time
}

// Skip names a record left out of a batch.
type Skip struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of BatchPublish.
type BatchResult struct {
	TxRef     string           `json:"txRef"`
	Published []triplet.Record `json:"published"`
	Skipped   []Skip           `json:"skipped"`
}

// Counts summarizes the collection.
type Counts struct {
	Total      int                    `json:"total"`
	Discovered int                    `json:"discovered"`
	Existing   int                    `json:"existing"`
	ByStatus   map[triplet.Status]int `json:"byStatus"`
}

// Machine applies lifecycle transitions to persisted records.
type Machine struct {
	store     *chunked.Store[triplet.Record]
	ledger    ledger.Client
	guard     *Guard
	publisher eventstream.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Machine.
func New(c Config) (*Machine, error) {
	if c.Store == nil {
		return nil, errors.New("lifecycle requires a record store")
	}
	if c.Ledger == nil {
		return nil, errors.New("lifecycle requires a ledger client")
	}
	if c.Guard == nil {
		c.Guard = NewGuard()
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Machine{
		store:     c.Store,
		ledger:    c.Ledger,
		guard:     c.Guard,
		publisher: c.Publisher,
		logger:    c.Logger,
		now:       c.Now,
	}, nil
}

// BeginCheck resolves the object atom of an atom-only record on the ledger and
// moves the record to ready. On ledger failure the record returns to atom-only
// and a *LedgerError is returned.
func (m *Machine) BeginCheck(ctx context.Context, id string) (triplet.Record, error) {
	rec, err := m.transition(ctx, id, func(r *triplet.Record) error {
		if r.Status != triplet.StatusAtomOnly {
			return &TransitionError{ID: id, From: r.Status, To: triplet.StatusChecking}
		}
		r.PriorStatus = r.Status
		r.Status = triplet.StatusChecking
		return nil
	})
	if err != nil {
		return triplet.Record{}, err
	}

	m.logger.Debug("checking object atom", "id", id, "object", rec.Triplet.Object)
	atom, lerr := m.ledger.ResolveOrCreateAtom(ctx, atomRequest(rec))
	if lerr != nil {
		rerr := m.rollback(ctx, id, triplet.StatusChecking, nil)
		m.logger.Warn("object atom check failed", "id", id, "error", lerr)
		return triplet.Record{}, errors.Join(&LedgerError{ID: id, Op: "resolve atom", Err: lerr}, rerr)
	}

	return m.transition(ctx, id, func(r *triplet.Record) error {
		if r.Status != triplet.StatusChecking {
			return &TransitionError{ID: id, From: r.Status, To: triplet.StatusReady}
		}
		r.Status = triplet.StatusReady
		r.PriorStatus = ""
		r.Refs.Object = atom.Ref
		if atom.Origin == ledger.AtomExisting {
			r.Origin = triplet.OriginExisting
		} else {
			r.Origin = triplet.OriginDiscovered
		}
		return nil
	})
}

// Publish submits one record to the ledger. Only one publish runs at a time;
// a concurrent call gets a *BusyError naming the record in flight. On ledger
// failure the record returns to its prior status and a *LedgerError is
// returned.
func (m *Machine) Publish(ctx context.Context, id string) (triplet.Record, error) {
	if !m.guard.TryAcquire(id) {
		return triplet.Record{}, &BusyError{InFlight: m.guard.Current()}
	}
	defer m.guard.Release()

	var priorRefs triplet.LedgerRefs
	rec, err := m.transition(ctx, id, func(r *triplet.Record) error {
		if !r.Status.Publishable() {
			return &TransitionError{ID: id, From: r.Status, To: triplet.StatusPublishing}
		}
		priorRefs = r.Refs
		m.markPublishing(r)
		return nil
	})
	if err != nil {
		return triplet.Record{}, err
	}

	m.logger.Info("publishing triplet", "id", id, "triplet", rec.Triplet.String())
	receipt, lerr := m.ledger.SubmitTriple(ctx, rec.Triplet.Predicate, atomRequest(rec))
	if lerr != nil {
		rerr := m.rollback(ctx, id, triplet.StatusPublishing, &priorRefs)
		m.logger.Warn("publish failed", "id", id, "error", lerr)
		return triplet.Record{}, errors.Join(&LedgerError{ID: id, Op: "submit triple", Err: lerr}, rerr)
	}

	status := triplet.StatusPublished
	if receipt.Existed {
		status = triplet.StatusExistsOnChain
	}

	published, err := m.transition(ctx, id, func(r *triplet.Record) error {
		if r.Status != triplet.StatusPublishing {
			return &TransitionError{ID: id, From: r.Status, To: status}
		}
		r.Status = status
		r.PriorStatus = ""
		r.PublishStartedAt = nil
		r.Refs = triplet.LedgerRefs{
			Subject:   receipt.SubjectRef,
			Predicate: receipt.PredicateRef,
			Object:    receipt.ObjectRef,
			Triple:    receipt.TripleRef,
			Tx:        receipt.TxRef,
		}
		if receipt.Existed {
			r.Origin = triplet.OriginExisting
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		m.logger.Warn("record removed while publishing", "id", id, "tx", receipt.TxRef)
		return triplet.Record{}, err
	}
	if err != nil {
		m.logger.Error("storing publish result failed", "id", id, "tx", receipt.TxRef, "error", err)
		return triplet.Record{}, &WriteBackError{ID: id, TxRef: receipt.TxRef, Err: err}
	}

	m.logger.Info("triplet published", "id", id, "status", status, "tx", receipt.TxRef)
	event := eventstream.NewEvent(eventstream.EventTypeTripletPublished, published)
	event.TxRef = receipt.TxRef
	eventstream.Emit(ctx, m.publisher, m.logger, event)

	return published, nil
}

// BatchPublish submits the given records to the ledger in one call. Records
// that are missing or not publishable are skipped with a reason; the rest are
// marked published in one write, sharing the batch transaction reference.
// Records deleted while the ledger call runs are skipped, not restored. A
// ledger failure rolls every marked record back and returns a *LedgerError.
func (m *Machine) BatchPublish(ctx context.Context, ids []string) (BatchResult, error) {
	if !m.guard.TryAcquire(batchHolder) {
		return BatchResult{}, &BusyError{InFlight: m.guard.Current()}
	}
	defer m.guard.Release()

	var (
		result   BatchResult
		marked   []string
		triplets []triplet.Triplet
	)
	err := m.store.Update(ctx, func(records []triplet.Record) ([]triplet.Record, error) {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true

			i := triplet.Find(records, id)
			if i < 0 {
				result.Skipped = append(result.Skipped, Skip{ID: id, Reason: "not found"})
				continue
			}
			r := &records[i]
			if !r.Status.Publishable() {
				result.Skipped = append(result.Skipped, Skip{ID: id, Reason: "status " + string(r.Status)})
				continue
			}
			m.markPublishing(r)
			marked = append(marked, id)
			triplets = append(triplets, r.Triplet)
		}
		if len(marked) == 0 {
			return nil, chunked.ErrNoChange
		}
		return records, nil
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("marking batch: %w", err)
	}
	for _, s := range result.Skipped {
		m.logger.Warn("skipping batch record", "id", s.ID, "reason", s.Reason)
	}
	if len(marked) == 0 {
		return result, nil
	}

	m.logger.Info("publishing batch", "records", len(marked))
	receipt, lerr := m.ledger.SubmitBatch(ctx, triplets)
	if lerr == nil && !receipt.Success {
		lerr = errors.New(cmp.Or(receipt.Error, "batch rejected"))
	}
	if lerr != nil {
		rerr := m.rollbackAll(ctx, marked)
		m.logger.Warn("batch publish failed", "records", len(marked), "error", lerr)
		return BatchResult{Skipped: result.Skipped}, errors.Join(&LedgerError{ID: batchHolder, Op: "submit batch", Err: lerr}, rerr)
	}
	result.TxRef = receipt.TxRef

	err = m.store.Update(ctx, func(records []triplet.Record) ([]triplet.Record, error) {
		for _, id := range marked {
			i := triplet.Find(records, id)
			if i < 0 {
				result.Skipped = append(result.Skipped, Skip{ID: id, Reason: "removed during publish"})
				m.logger.Warn("batch record removed during publish", "id", id, "tx", receipt.TxRef)
				continue
			}
			r := &records[i]
			r.Status = triplet.StatusPublished
			r.PriorStatus = ""
			r.PublishStartedAt = nil
			r.Refs = triplet.LedgerRefs{
				Subject:   triplet.RefBatchCreated,
				Predicate: triplet.RefBatchCreated,
				Object:    cmp.Or(r.Refs.Object, triplet.RefBatchCreated),
				Triple:    triplet.RefBatchCreated,
				Tx:        receipt.TxRef,
			}
			result.Published = append(result.Published, *r)
		}
		if len(result.Published) == 0 {
			return nil, chunked.ErrNoChange
		}
		return records, nil
	})
	if err != nil {
		m.logger.Error("storing batch result failed", "records", len(marked), "tx", receipt.TxRef, "error", err)
		return result, &WriteBackError{ID: batchHolder, TxRef: receipt.TxRef, Err: err}
	}

	m.logger.Info("batch published",
		"published", len(result.Published),
		"skipped", len(result.Skipped),
		"tx", result.TxRef,
	)
	event := eventstream.NewEvent(eventstream.EventTypeBatchPublished, result.Published...)
	event.TxRef = result.TxRef
	eventstream.Emit(ctx, m.publisher, m.logger, event)

	return result, nil
}

// Forget removes a record.
func (m *Machine) Forget(ctx context.Context, id string) error {
	err := m.store.Update(ctx, func(records []triplet.Record) ([]triplet.Record, error) {
		i := triplet.Find(records, id)
		if i < 0 {
			return nil, notFound(id)
		}
		return slices.Delete(records, i, i+1), nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("record forgotten", "id", id)
	return nil
}

// Mutate applies fn to the freshly loaded record and saves it; the last write
// wins. Only content fields may change: id, status, prior status, origin,
// ledger refs and the source message are set by transitions, and an edit that
// changes any of them is rejected with an *EditError. Records in flight are
// not editable, and the triplet itself may only change while the record is
// atom-only and must stay unique (*DuplicateError).
func (m *Machine) Mutate(ctx context.Context, id string, fn func(r *triplet.Record)) (triplet.Record, error) {
	var out triplet.Record
	err := m.store.Update(ctx, func(records []triplet.Record) ([]triplet.Record, error) {
		i := triplet.Find(records, id)
		if i < 0 {
			return nil, notFound(id)
		}

		before := records[i]
		if before.Status.InFlight() {
			return nil, &EditError{ID: id, Reason: "record is " + string(before.Status)}
		}

		edited := before
		fn(&edited)
		if err := checkEdit(before, edited); err != nil {
			return nil, err
		}

		if !edited.Triplet.Equal(before.Triplet) {
			for j, r := range records {
				if j != i && r.Triplet.Equal(edited.Triplet) {
					return nil, &DuplicateError{ID: id, ExistingID: r.ID, Triplet: edited.Triplet}
				}
			}
		}

		records[i] = edited
		out = edited
		return records, nil
	})
	if err != nil {
		return triplet.Record{}, err
	}

	m.logger.Info("record edited", "id", id)
	return out, nil
}

func checkEdit(before, after triplet.Record) error {
	id := before.ID
	switch {
	case after.ID != before.ID:
		return &EditError{ID: id, Reason: "id is immutable"}
	case after.Status != before.Status:
		return &TransitionError{ID: id, From: before.Status, To: after.Status}
	case after.PriorStatus != before.PriorStatus,
		after.PublishStartedAt != before.PublishStartedAt,
		after.Origin != before.Origin,
		after.Refs != before.Refs:
		return &EditError{ID: id, Reason: "lifecycle fields are set by transitions"}
	case after.SourceMessageID != before.SourceMessageID:
		return &EditError{ID: id, Reason: "source message is immutable"}
	}

	if after.Triplet.Equal(before.Triplet) {
		return nil
	}
	if before.Status != triplet.StatusAtomOnly {
		return &EditError{ID: id, Reason: "triplet is fixed once the record leaves atom-only"}
	}
	if after.Triplet.Subject == "" || after.Triplet.Predicate == "" || after.Triplet.Object == "" {
		return &EditError{ID: id, Reason: "triplet fields must not be empty"}
	}
	return nil
}

// Recover rolls back records left in flight by an interrupted process:
// checking returns to atom-only and publishing to the status it was entered
// from. It must run before any ledger call is started and returns the number
// of records recovered.
func (m *Machine) Recover(ctx context.Context) (int, error) {
	if !m.guard.TryAcquire("recover") {
		return 0, &BusyError{InFlight: m.guard.Current()}
	}
	defer m.guard.Release()

	recovered := 0
	err := m.store.Update(ctx, func(records []triplet.Record) ([]triplet.Record, error) {
		for i := range records {
			r := &records[i]
			if !r.Status.InFlight() {
				continue
			}
			m.logger.Warn("recovering stale record", "id", r.ID, "status", r.Status)
			restore(r)
			recovered++
		}
		if recovered == 0 {
			return nil, chunked.ErrNoChange
		}
		return records, nil
	})
	if err != nil {
		return 0, err
	}
	return recovered, nil
}

// Get returns one record.
func (m *Machine) Get(ctx context.Context, id string) (triplet.Record, error) {
	records, err := m.store.Load(ctx)
	if err != nil {
		return triplet.Record{}, err
	}
	i := triplet.Find(records, id)
	if i < 0 {
		return triplet.Record{}, notFound(id)
	}
	return records[i], nil
}

// List returns the records, optionally restricted to the given statuses.
func (m *Machine) List(ctx context.Context, statuses ...triplet.Status) ([]triplet.Record, error) {
	records, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return records, nil
	}
	return slices.DeleteFunc(records, func(r triplet.Record) bool {
		return !slices.Contains(statuses, r.Status)
	}), nil
}

// Pending returns the publishable records, newest first.
func (m *Machine) Pending(ctx context.Context) ([]triplet.Record, error) {
	records, err := m.List(ctx, triplet.StatusAtomOnly, triplet.StatusReady)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(records, func(a, b triplet.Record) int {
		return b.ExtractedAt.Compare(a.ExtractedAt)
	})
	return records, nil
}

// Counts summarizes the collection by origin and status.
func (m *Machine) Counts(ctx context.Context) (Counts, error) {
	records, err := m.store.Load(ctx)
	if err != nil {
		return Counts{}, err
	}

	c := Counts{Total: len(records), ByStatus: make(map[triplet.Status]int)}
	for _, r := range records {
		c.ByStatus[r.Status]++
		if r.Origin == triplet.OriginExisting {
			c.Existing++
		} else {
			c.Discovered++
		}
	}
	return c, nil
}

// transition applies fn to the record with the given id inside one Update and
// returns the saved record.
func (m *Machine) transition(ctx context.Context, id string, fn func(r *triplet.Record) error) (triplet.Record, error) {
	var out triplet.Record
	err := m.store.Update(ctx, func(records []triplet.Record) ([]triplet.Record, error) {
		i := triplet.Find(records, id)
		if i < 0 {
			return nil, notFound(id)
		}
		if err := fn(&records[i]); err != nil {
			return nil, err
		}
		out = records[i]
		return records, nil
	})
	return out, err
}

func (m *Machine) markPublishing(r *triplet.Record) {
	started := m.now().UTC()
	r.PriorStatus = r.Status
	r.Status = triplet.StatusPublishing
	r.PublishStartedAt = &started
	r.Refs.Triple = triplet.RefPending
	r.Refs.Tx = triplet.RefPending
}

// rollback returns a record in status from to its prior status. A record that
// was removed or has already moved on is left alone.
func (m *Machine) rollback(ctx context.Context, id string, from triplet.Status, refs *triplet.LedgerRefs) error {
	_, err := m.transition(ctx, id, func(r *triplet.Record) error {
		if r.Status != from {
			return chunked.ErrNoChange
		}
		restore(r)
		if refs != nil {
			r.Refs = *refs
		}
		return nil
	})
	if err == nil || errors.Is(err, chunked.ErrNoChange) || errors.Is(err, ErrNotFound) {
		return nil
	}
	return fmt.Errorf("rolling back %s: %w", id, err)
}

func (m *Machine) rollbackAll(ctx context.Context, ids []string) error {
	err := m.store.Update(ctx, func(records []triplet.Record) ([]triplet.Record, error) {
		changed := false
		for _, id := range ids {
			i := triplet.Find(records, id)
			if i < 0 || records[i].Status != triplet.StatusPublishing {
				continue
			}
			restore(&records[i])
			changed = true
		}
		if !changed {
			return nil, chunked.ErrNoChange
		}
		return records, nil
	})
	if err != nil {
		return fmt.Errorf("rolling back batch: %w", err)
	}
	return nil
}

// restore moves an in-flight record back to where it came from and clears the
// placeholders set on entry.
func restore(r *triplet.Record) {
	switch {
	case r.Status == triplet.StatusPublishing && r.PriorStatus.Publishable():
		r.Status = r.PriorStatus
	default:
		r.Status = triplet.StatusAtomOnly
	}
	r.PriorStatus = ""
	r.PublishStartedAt = nil
	if r.Refs.Triple == triplet.RefPending {
		r.Refs.Triple = ""
	}
	if r.Refs.Tx == triplet.RefPending {
		r.Refs.Tx = ""
	}
}

func atomRequest(r triplet.Record) ledger.AtomRequest {
	return ledger.AtomRequest{
		Name:        r.Triplet.Object,
		Description: cmp.Or(r.ObjectDescription, ledger.DefaultObjectDescription),
		URL:         r.ObjectURL,
	}
}
