// Package eventstream defines the events echoes emits as triplets move through
// their lifecycle, and the publisher contract for delivering them.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/echoes/pkg/triplet"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTripletExtracted is emitted after a new triplet is persisted.
	EventTypeTripletExtracted = "echoes.triplet.extracted"

	// EventTypeTripletPublished is emitted after a single triplet reaches a
	// terminal ledger state.
	EventTypeTripletPublished = "echoes.triplet.published"

	// EventTypeBatchPublished is emitted after a batch submission is written back.
	EventTypeBatchPublished = "echoes.batch.published"
)

// TripletEvent is a transport-neutral event payload.
type TripletEvent struct {
	SchemaVersion int              `json:"schema_version"`
	EventType     string           `json:"event_type"`
	EventID       string           `json:"event_id"`
	EmittedAt     time.Time        `json:"emitted_at"`
	TxRef         string           `json:"tx_ref,omitempty"`
	Records       []triplet.Record `json:"records"`
}

// NewEvent builds an event of the given type for records.
func NewEvent(eventType string, records ...triplet.Record) *TripletEvent {
	return &TripletEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Records:       records,
	}
}
