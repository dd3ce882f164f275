package nats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/kvsnode/internal/streams"
)

// DefaultCommandTimeout bounds a single command invocation.
const DefaultCommandTimeout = 30 * time.Second

// Invoker handles one decoded request and returns the JSON reply.
type Invoker interface {
	Invoke(ctx context.Context, request map[string]any) (string, error)
}

// CommandServer answers command requests on a subject. Each request body is
// a JSON object; the reply is the response JSON.
type CommandServer struct {
	client  *Client
	subject string
	invoker Invoker
	timeout time.Duration
	logger  *slog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewCommandServer creates a command server. An empty subject selects
// DefaultCommandSubject.
func NewCommandServer(client *Client, subject string, invoker Invoker, logger *slog.Logger) *CommandServer {
	if subject == "" {
		subject = DefaultCommandSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandServer{
		client:  client,
		subject: subject,
		invoker: invoker,
		timeout: DefaultCommandTimeout,
		logger:  logger.With("component", "nats-commands", "subject", subject),
	}
}

// Start subscribes to the command subject. Replicas share a queue group so
// each command is handled once.
func (s *CommandServer) Start() error {
	conn := s.client.Conn()
	if conn == nil {
		return ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := conn.QueueSubscribe(s.subject, CommandQueueGroup, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("Listening for commands")
	return nil
}

// Stop unsubscribes from the command subject.
func (s *CommandServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		_ = s.sub.Unsubscribe()
		s.sub = nil
	}
}

func (s *CommandServer) handle(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	request := decodeRequest(msg.Data)
	reply, err := s.invoker.Invoke(ctx, request)
	if err != nil {
		s.logger.Error("Command failed", "error", err)
		data, jsonErr := streams.NewResponse(streams.StatusError, err.Error()).JSON()
		if jsonErr != nil {
			return
		}
		reply = string(data)
	}

	if msg.Reply == "" {
		return
	}
	if err := msg.Respond([]byte(reply)); err != nil {
		s.logger.Warn("Failed to send command reply", "error", err)
	}
}
