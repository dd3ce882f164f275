package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/kvsnode/internal/events"
	"github.com/smazurov/kvsnode/internal/streams"
)

// DefaultFlushTimeout bounds how long Publish waits for the server to
// acknowledge a response.
const DefaultFlushTimeout = 5 * time.Second

// Publisher sends controller responses to the output subject. Publish
// returns only after the server has received the message.
type Publisher struct {
	client       *Client
	subject      string
	flushTimeout time.Duration
	bus          *events.Bus
	logger       *slog.Logger
}

// NewPublisher creates a publisher for the output topic. bus, when set,
// receives a ResponsePublishedEvent for every delivered response.
func NewPublisher(client *Client, topic string, bus *events.Bus, logger *slog.Logger) (*Publisher, error) {
	subject := SubjectFromTopic(topic)
	if subject == "" {
		return nil, fmt.Errorf("invalid output topic %q", topic)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:       client,
		subject:      subject,
		flushTimeout: DefaultFlushTimeout,
		bus:          bus,
		logger:       logger.With("component", "nats-publisher", "subject", subject),
	}, nil
}

// Subject returns the subject responses are published on.
func (p *Publisher) Subject() string { return p.subject }

// Publish serializes r and publishes it. Transport errors are returned as is.
func (p *Publisher) Publish(ctx context.Context, r streams.Response) error {
	conn := p.client.Conn()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := r.JSON()
	if err != nil {
		return err
	}
	if err := conn.Publish(p.subject, data); err != nil {
		return err
	}

	timeout := p.flushTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if err := conn.FlushTimeout(timeout); err != nil {
		return err
	}

	p.logger.Debug("Response published", "status", r.Status, "message", r.Message)
	if p.bus != nil {
		p.bus.Publish(events.ResponsePublishedEvent{
			Status:    string(r.Status),
			Message:   r.Message,
			Timestamp: time.Now(),
		})
	}
	return nil
}
