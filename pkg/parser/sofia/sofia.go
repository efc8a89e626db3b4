// Package sofia parses the structured replies of the SofIA agent.
//
// The agent answers with a JSON object, either bare, inside a ```json fence,
// or embedded in surrounding prose:
//
//	{
//	  "triplets": [{"subject": "User", "predicate": "has visited", "object": "Go docs"}],
//	  "intention": "learning",
//	  "rawObjectDescription": "The Go programming language documentation",
//	  "rawObjectUrl": "https://go.dev/doc"
//	}
//
// Text with no JSON object is a message with nothing to extract. Text with a
// JSON object that does not decode is an error, so the message is retried.
package sofia

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/echoes/pkg/parser"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// ErrMalformed is wrapped by errors for JSON payloads that cannot be decoded.
var ErrMalformed = errors.New("malformed agent message")

// Parser implements parser.Parser for SofIA agent messages.
type Parser struct{}

// New creates a SofIA message parser.
func New() *Parser {
	return &Parser{}
}

type payload struct {
	Triplets             []triplet.Triplet `json:"triplets"`
	Intention            string            `json:"intention"`
	RawObjectDescription string            `json:"rawObjectDescription"`
	RawObjectURL         string            `json:"rawObjectUrl"`
}

// Parse extracts the triplets of an agent message.
func (p *Parser) Parse(text string, timestamp time.Time) (*parser.Parsed, error) {
	body, ok := extractJSON(text)
	if !ok {
		return nil, nil
	}

	var pl payload
	if err := json.Unmarshal([]byte(body), &pl); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	parsed := &parser.Parsed{
		Intention:            strings.TrimSpace(pl.Intention),
		RawObjectDescription: strings.TrimSpace(pl.RawObjectDescription),
		RawObjectURL:         strings.TrimSpace(pl.RawObjectURL),
		CreatedAt:            timestamp,
	}

	for _, t := range pl.Triplets {
		t = normalize(t)
		if t.Subject == "" || t.Predicate == "" || t.Object == "" {
			continue
		}
		parsed.Triplets = append(parsed.Triplets, t)
	}

	return parsed, nil
}

func normalize(t triplet.Triplet) triplet.Triplet {
	return triplet.Triplet{
		Subject:   strings.Join(strings.Fields(t.Subject), " "),
		Predicate: strings.Join(strings.Fields(t.Predicate), " "),
		Object:    strings.Join(strings.Fields(t.Object), " "),
	}
}

// extractJSON returns the outermost JSON object in text, preferring the body
// of a ```json fence when one is present.
func extractJSON(text string) (string, bool) {
	if _, after, found := strings.Cut(text, "```json"); found {
		if body, _, closed := strings.Cut(after, "```"); closed {
			text = body
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
