package nats

import (
	"log/slog"
	"sync"

	"github.com/smazurov/kvsnode/internal/events"
)

// Bridge mirrors controller events from the event bus onto NATS subjects so
// that other services can follow stream state.
type Bridge struct {
	client   *Client
	eventBus *events.Bus
	unsubs   []func()
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewBridge creates a new EventBus-to-NATS bridge.
func NewBridge(client *Client, eventBus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		client:   client,
		eventBus: eventBus,
		logger:   logger.With("component", "nats-bridge"),
	}
}

// Start subscribes to the event bus.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.unsubs = append(b.unsubs,
		b.eventBus.Subscribe(func(e events.StreamStateChangedEvent) {
			b.forward(SubjectEventState, NewStateMessage(e))
		}),
		b.eventBus.Subscribe(func(e events.StreamRestartEvent) {
			b.forward(SubjectEventRestart, NewRestartMessage(e))
		}),
	)
	b.logger.Debug("NATS bridge started")
}

// Stop unsubscribes from the event bus.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
	b.logger.Debug("NATS bridge stopped")
}

type marshaler interface {
	Marshal() ([]byte, error)
}

// forward publishes fire-and-forget; a missing connection drops the event.
func (b *Bridge) forward(subject string, m marshaler) {
	conn := b.client.Conn()
	if conn == nil || !b.client.IsConnected() {
		return
	}

	data, err := m.Marshal()
	if err != nil {
		b.logger.Warn("Failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		b.logger.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}
