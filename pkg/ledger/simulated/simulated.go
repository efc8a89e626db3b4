// Package simulated provides an in-process ledger.Client.
//
// Atoms and triples are content addressed: the same name always resolves to
// the same reference, and a second submission of the same triple reports that
// it already existed. Transaction references are derived from a counter so a
// fresh ledger replays identically. It lets echoes run end to end without a
// chain; state lives only as long as the process.
package simulated

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/papercomputeco/echoes/pkg/ledger"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// DefaultSubject is the subject atom used for single triple submissions.
const DefaultSubject = "I"

// Ledger is an in-memory, content-addressed ledger.
type Ledger struct {
	subject string

	mu      sync.Mutex
	atoms   map[string]string
	triples map[string]string
	nonce   uint64
}

// New creates a simulated ledger whose single submissions use subject as the
// triple subject. An empty subject uses DefaultSubject.
func New(subject string) *Ledger {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Ledger{
		subject: subject,
		atoms:   make(map[string]string),
		triples: make(map[string]string),
	}
}

// ResolveOrCreateAtom returns the atom named req.Name, creating it if needed.
func (l *Ledger) ResolveOrCreateAtom(ctx context.Context, req ledger.AtomRequest) (ledger.Atom, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Atom{}, err
	}
	if req.Name == "" {
		return ledger.Atom{}, errors.New("atom name is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ref, created := l.atom(req.Name)
	origin := ledger.AtomExisting
	if created {
		origin = ledger.AtomCreated
	}
	return ledger.Atom{Ref: ref, Origin: origin}, nil
}

// SubmitTriple records (subject, predicate, object).
func (l *Ledger) SubmitTriple(ctx context.Context, predicate string, object ledger.AtomRequest) (ledger.TripleReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ledger.TripleReceipt{}, err
	}
	if predicate == "" || object.Name == "" {
		return ledger.TripleReceipt{}, errors.New("predicate and object are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	subjectRef, _ := l.atom(l.subject)
	predicateRef, _ := l.atom(predicate)
	objectRef, _ := l.atom(object.Name)
	tripleRef, created := l.triple(subjectRef, predicateRef, objectRef)

	return ledger.TripleReceipt{
		TripleRef:    tripleRef,
		SubjectRef:   subjectRef,
		PredicateRef: predicateRef,
		ObjectRef:    objectRef,
		TxRef:        l.nextTx(),
		Existed:      !created,
	}, nil
}

// SubmitBatch records every triplet under one transaction.
func (l *Ledger) SubmitBatch(ctx context.Context, triplets []triplet.Triplet) (ledger.BatchReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ledger.BatchReceipt{}, err
	}
	if len(triplets) == 0 {
		return ledger.BatchReceipt{Success: false, Error: "empty batch"}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range triplets {
		s, _ := l.atom(t.Subject)
		p, _ := l.atom(t.Predicate)
		o, _ := l.atom(t.Object)
		l.triple(s, p, o)
	}

	return ledger.BatchReceipt{TxRef: l.nextTx(), Success: true}, nil
}

// AtomCount returns the number of atoms on the ledger.
func (l *Ledger) AtomCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.atoms)
}

// TripleCount returns the number of triples on the ledger.
func (l *Ledger) TripleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.triples)
}

func (l *Ledger) atom(name string) (string, bool) {
	if ref, ok := l.atoms[name]; ok {
		return ref, false
	}
	ref := digest("atom", name)
	l.atoms[name] = ref
	return ref, true
}

func (l *Ledger) triple(s, p, o string) (string, bool) {
	key := s + p + o
	if ref, ok := l.triples[key]; ok {
		return ref, false
	}
	ref := digest("triple", key)
	l.triples[key] = ref
	return ref, true
}

func (l *Ledger) nextTx() string {
	l.nonce++
	return digest("tx", fmt.Sprintf("%d", l.nonce))
}

func digest(kind, value string) string {
	sum := sha256.Sum256([]byte(kind + ":" + value))
	return "0x" + hex.EncodeToString(sum[:])
}
