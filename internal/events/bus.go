package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Publish never blocks on subscribers
// and each subscriber receives events of a type in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers of its type.
// Usage: bus.Publish(PipelineEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case PipelineEvent:
		event.Publish(b.dispatcher, e)
	case StreamStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case StreamRestartEvent:
		event.Publish(b.dispatcher, e)
	case ResponsePublishedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter and
// returns an unsubscribe function. Unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e PipelineEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(PipelineEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamRestartEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ResponsePublishedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
