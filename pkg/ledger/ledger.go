// Package ledger defines the contract between echoes and the external ledger
// that published triplets are written to.
//
// Every call may fail and every failure is retryable from the caller's point
// of view: a failed call leaves no partial state the caller has to repair.
package ledger

import (
	"context"

	"github.com/papercomputeco/echoes/pkg/triplet"
)

// DefaultObjectDescription is used when the agent did not describe the object.
const DefaultObjectDescription = "Content visited by the user."

// AtomRequest describes an atom to resolve or create.
type AtomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// AtomOrigin reports whether an atom was created by the call or already existed.
type AtomOrigin string

const (
	AtomCreated  AtomOrigin = "created"
	AtomExisting AtomOrigin = "existing"
)

// Atom is a resolved ledger atom.
type Atom struct {
	Ref    string     `json:"ref"`
	Origin AtomOrigin `json:"origin"`
}

// TripleReceipt holds the references returned by a single triple submission.
type TripleReceipt struct {
	TripleRef    string `json:"tripleRef"`
	SubjectRef   string `json:"subjectRef"`
	PredicateRef string `json:"predicateRef"`
	ObjectRef    string `json:"objectRef"`
	TxRef        string `json:"txRef"`

	// Existed is true when the triple was already on the ledger.
	Existed bool `json:"existed"`
}

// BatchReceipt is the outcome of a batch submission.
type BatchReceipt struct {
	TxRef   string `json:"txRef"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Client submits atoms and triples to the ledger.
type Client interface {
	// ResolveOrCreateAtom finds the atom matching req or creates it.
	ResolveOrCreateAtom(ctx context.Context, req AtomRequest) (Atom, error)

	// SubmitTriple publishes (user, predicate, object) as one transaction.
	SubmitTriple(ctx context.Context, predicate string, object AtomRequest) (TripleReceipt, error)

	// SubmitBatch publishes many triplets under one authorization.
	SubmitBatch(ctx context.Context, triplets []triplet.Triplet) (BatchReceipt, error)
}
