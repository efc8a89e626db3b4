package eventstream

import (
	"context"
	"log/slog"
)

// Publisher publishes triplet events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *TripletEvent) error
	Close() error
}

// Emit publishes event and logs, rather than returns, any failure. Events are
// notifications; a broker outage must not fail the operation that caused them.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, event *TripletEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish event",
			"event_type", event.EventType,
			"event_id", event.EventID,
			"error", err,
		)
	}
}
