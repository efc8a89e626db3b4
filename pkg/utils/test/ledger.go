package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/echoes/pkg/ledger"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// ErrLedger is returned by MockLedger when a failure is configured.
var ErrLedger = errors.New("mock ledger failure")

// MockLedger is a ledger.Client that records calls and returns configurable
// results.
type MockLedger struct {
	mu sync.Mutex

	// FailResolve, FailSubmit and FailBatch make the matching call return ErrLedger.
	FailResolve bool
	FailSubmit  bool
	FailBatch   bool

	// BatchUnsuccessful makes SubmitBatch return Success=false without an error.
	BatchUnsuccessful bool

	// Existing makes ResolveOrCreateAtom report existing atoms and SubmitTriple
	// report existing triples.
	Existing bool

	// OnSubmit, when set, runs inside SubmitTriple and SubmitBatch before they
	// return. Tests use it to hold a call open or mutate state concurrently.
	OnSubmit func()

	ResolveCalls []ledger.AtomRequest
	SubmitCalls  []string
	BatchCalls   [][]triplet.Triplet
}

// NewMockLedger creates a mock ledger that succeeds by default.
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

func (m *MockLedger) ResolveOrCreateAtom(_ context.Context, req ledger.AtomRequest) (ledger.Atom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ResolveCalls = append(m.ResolveCalls, req)
	if m.FailResolve {
		return ledger.Atom{}, ErrLedger
	}

	origin := ledger.AtomCreated
	if m.Existing {
		origin = ledger.AtomExisting
	}
	return ledger.Atom{Ref: "atom:" + req.Name, Origin: origin}, nil
}

func (m *MockLedger) SubmitTriple(_ context.Context, predicate string, object ledger.AtomRequest) (ledger.TripleReceipt, error) {
	m.mu.Lock()
	m.SubmitCalls = append(m.SubmitCalls, predicate+"|"+object.Name)
	hook := m.OnSubmit
	fail := m.FailSubmit
	existing := m.Existing
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail {
		return ledger.TripleReceipt{}, ErrLedger
	}

	return ledger.TripleReceipt{
		TripleRef:    "triple:" + predicate + ":" + object.Name,
		SubjectRef:   "atom:I",
		PredicateRef: "atom:" + predicate,
		ObjectRef:    "atom:" + object.Name,
		TxRef:        "tx:" + object.Name,
		Existed:      existing,
	}, nil
}

func (m *MockLedger) SubmitBatch(_ context.Context, triplets []triplet.Triplet) (ledger.BatchReceipt, error) {
	m.mu.Lock()
	m.BatchCalls = append(m.BatchCalls, triplets)
	hook := m.OnSubmit
	fail := m.FailBatch
	unsuccessful := m.BatchUnsuccessful
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail {
		return ledger.BatchReceipt{}, ErrLedger
	}
	if unsuccessful {
		return ledger.BatchReceipt{Success: false, Error: "user rejected"}, nil
	}
	return ledger.BatchReceipt{TxRef: "tx:batch", Success: true}, nil
}
