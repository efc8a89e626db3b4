package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/echoes/pkg/eventstream"
)

// RecordingPublisher is an eventstream.Publisher that keeps every event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TripletEvent
}

// NewRecordingPublisher creates an empty RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(_ context.Context, event *eventstream.TripletEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error {
	return nil
}

// Events returns a copy of the published events.
func (p *RecordingPublisher) Events() []*eventstream.TripletEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*eventstream.TripletEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventTypes returns the type of every published event, in order.
func (p *RecordingPublisher) EventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}
