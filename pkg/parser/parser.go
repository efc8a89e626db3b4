// Package parser defines the contract between echoes and the component that
// turns agent message text into candidate triplets.
package parser

import (
	"time"

	"github.com/papercomputeco/echoes/pkg/triplet"
)

// Parsed is the structured content of one agent message.
type Parsed struct {
	Triplets             []triplet.Triplet `json:"triplets"`
	Intention            string            `json:"intention,omitempty"`
	RawObjectDescription string            `json:"rawObjectDescription,omitempty"`
	RawObjectURL         string            `json:"rawObjectUrl,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

// Parser turns message text into candidate triplets.
//
// Parse must be deterministic for the same input so that re-processing a
// message is idempotent. A nil result with a nil error means the message holds
// nothing to extract; an error means the message should be retried later.
type Parser interface {
	Parse(text string, timestamp time.Time) (*Parsed, error)
}

// Func adapts a function to the Parser interface.
type Func func(text string, timestamp time.Time) (*Parsed, error)

// Parse calls f.
func (f Func) Parse(text string, timestamp time.Time) (*Parsed, error) {
	return f(text, timestamp)
}
