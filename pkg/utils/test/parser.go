// Package testutils holds test doubles shared across echoes package tests.
package testutils

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/echoes/pkg/parser"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// ErrParse is returned by MockParser for texts registered as failing.
var ErrParse = errors.New("mock parse failure")

// MockParser is a deterministic parser driven by a line-based format: every
// line "s|p|o" of the text becomes a triplet. Texts containing "FAIL" fail.
type MockParser struct {
	mu    sync.Mutex
	Calls []string
}

// NewMockParser creates a mock parser.
func NewMockParser() *MockParser {
	return &MockParser{}
}

func (m *MockParser) Parse(text string, timestamp time.Time) (*parser.Parsed, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()

	if strings.Contains(text, "FAIL") {
		return nil, ErrParse
	}

	var out []triplet.Triplet
	for _, line := range strings.Split(text, "\n") {
		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			continue
		}
		out = append(out, triplet.Triplet{Subject: parts[0], Predicate: parts[1], Object: parts[2]})
	}
	if len(out) == 0 {
		return nil, nil
	}

	return &parser.Parsed{
		Triplets:             out,
		RawObjectDescription: "described " + out[0].Object,
		RawObjectURL:         "https://example.com/" + out[0].Object,
		CreatedAt:            timestamp,
	}, nil
}

// CallCount returns the number of Parse calls.
func (m *MockParser) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// TripletText renders triplets in the MockParser line format.
func TripletText(ts ...triplet.Triplet) string {
	lines := make([]string, len(ts))
	for i, t := range ts {
		lines[i] = t.Subject + "|" + t.Predicate + "|" + t.Object
	}
	return strings.Join(lines, "\n")
}
