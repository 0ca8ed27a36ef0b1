package event

import (
	"context"

	"github.com/viant/hitl/internal/clock"
	"github.com/viant/hitl/service/messaging"
)

// Publisher delivers events to interested subscribers. Publication is
// fire-and-forget: implementations must never let delivery failures propagate
// into the approval state machine.
type Publisher interface {
	Publish(ctx context.Context, event *Event)
}

// QueuePublisher fans events out over a messaging queue.
type QueuePublisher struct {
	queue messaging.Queue[Event]
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue messaging.Queue[Event]) *QueuePublisher {
	return &QueuePublisher{queue: queue}
}

// Publish stamps and enqueues the event; a full queue drops the event.
func (p *QueuePublisher) Publish(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	event.CreatedAt = clock.Now()
	_ = p.queue.Publish(ctx, event)
}

// Queue exposes the underlying queue so callers can consume events.
func (p *QueuePublisher) Queue() messaging.Queue[Event] {
	return p.queue
}

// Nop is a Publisher that discards all events.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(context.Context, *Event) {}
