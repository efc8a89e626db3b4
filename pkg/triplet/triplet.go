// Package triplet holds the value types shared by the echoes pipeline: raw
// agent messages, extracted subject-predicate-object triplets and the durable
// records that track each triplet through its ledger lifecycle.
package triplet

import (
	"strings"
	"time"
)

// Triplet is a subject-predicate-object fact. Two triplets are the same fact
// when all three fields are equal.
type Triplet struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Equal reports structural equality.
func (t Triplet) Equal(o Triplet) bool {
	return t == o
}

// Key returns the dedup key of the triplet.
func (t Triplet) Key() string {
	return strings.Join([]string{t.Subject, t.Predicate, t.Object}, "\x1f")
}

// String renders the triplet as "subject → predicate → object".
func (t Triplet) String() string {
	return t.Subject + " → " + t.Predicate + " → " + t.Object
}

// RawMessage is an inbound agent message waiting for extraction.
type RawMessage struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
	Text       string    `json:"text"`
	Processed  bool      `json:"processed"`
}

// Origin records whether the ledger entity behind a record was created fresh
// or matched an existing one.
type Origin string

const (
	OriginDiscovered Origin = "discovered"
	OriginExisting   Origin = "existing"
)

// Status is the lifecycle state of a Record.
type Status string

const (
	StatusAtomOnly      Status = "atom-only"
	StatusChecking      Status = "checking"
	StatusReady         Status = "ready"
	StatusPublishing    Status = "publishing"
	StatusPublished     Status = "published"
	StatusExistsOnChain Status = "exists-on-chain"
)

// Rank orders statuses along the lifecycle. The two terminal states share a rank.
func (s Status) Rank() int {
	switch s {
	case StatusAtomOnly:
		return 0
	case StatusChecking:
		return 1
	case StatusReady:
		return 2
	case StatusPublishing:
		return 3
	case StatusPublished, StatusExistsOnChain:
		return 4
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// Terminal reports whether s ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusExistsOnChain
}

// InFlight reports whether a ledger call is outstanding for a record in s.
func (s Status) InFlight() bool {
	return s == StatusChecking || s == StatusPublishing
}

// Publishable reports whether a record in s may enter publishing.
func (s Status) Publishable() bool {
	return s == StatusAtomOnly || s == StatusReady
}

// Ledger reference placeholders.
const (
	// RefPending marks a reference whose ledger operation has not completed.
	RefPending = "pending"

	// RefBatchCreated marks a per-record reference that a batch submission
	// did not resolve individually.
	RefBatchCreated = "batch-created"
)

// LedgerRefs holds the identifiers assigned by the ledger.
type LedgerRefs struct {
	Subject   string `json:"subjectRef,omitempty"`
	Predicate string `json:"predicateRef,omitempty"`
	Object    string `json:"objectRef,omitempty"`
	Triple    string `json:"tripleRef,omitempty"`
	Tx        string `json:"txRef,omitempty"`
}

// Record is the durable, lifecycle-tracked unit of the triplet collection.
type Record struct {
	ID              string     `json:"id"`
	Triplet         Triplet    `json:"triplet"`
	SourceMessageID string     `json:"sourceMessageId"`
	Origin          Origin     `json:"origin"`
	Status          Status     `json:"status"`
	PriorStatus     Status     `json:"priorStatus,omitempty"`
	Refs            LedgerRefs `json:"ledgerRefs"`

	Intention         string `json:"intention,omitempty"`
	ObjectDescription string `json:"objectDescription,omitempty"`
	ObjectURL         string `json:"objectUrl,omitempty"`

	ExtractedAt      time.Time  `json:"extractedAt"`
	Timestamp        time.Time  `json:"timestamp"`
	PublishStartedAt *time.Time `json:"publishStartedAt,omitempty"`
}

// Find returns the index of the record with the given id, or -1.
func Find(records []Record, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether any record holds a triplet equal to t.
func Contains(records []Record, t Triplet) bool {
	for i := range records {
		if records[i].Triplet.Equal(t) {
			return true
		}
	}
	return false
}
