package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/kvsnode/internal/credentials"
	"github.com/smazurov/kvsnode/internal/events"
	"github.com/smazurov/kvsnode/internal/gstreamer"
	"github.com/smazurov/kvsnode/internal/logging"
)

// Defaults for Options.
const (
	DefaultStopTimeout = 10 * time.Second
	DefaultExpiryLead  = 30 * time.Second
)

// State is the lifecycle state of a Session.
type State int

// Session states.
const (
	StateBuilt State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	Bus            *events.Bus
	StopTimeout    time.Duration
	ExpiryLead     time.Duration
	CredentialsDir string

	// Now is the clock used for the expiry timer.
	Now func() time.Time
}

// Session is one built pipeline together with the credentials that
// produced it.
type Session struct {
	id       string
	creds    credentials.Credentials
	pipeline Pipeline
	bus      *events.Bus
	logger   *slog.Logger

	stopTimeout time.Duration
	expiryLead  time.Duration
	now         func() time.Time

	credFile    string
	description string

	mu            sync.Mutex
	state         State
	stopRequested bool
	terminal      *Message
	cancel        context.CancelFunc
	timer         *time.Timer
	done          chan struct{}
}

// NewSession builds a pipeline for params and creds. Session tokens are
// written to a credential file that lives until the session stops.
func NewSession(engine Engine, params gstreamer.Params, creds credentials.Credentials, opts Options) (*Session, error) {
	s := &Session{
		id:          uuid.NewString(),
		creds:       creds,
		bus:         opts.Bus,
		stopTimeout: opts.StopTimeout,
		expiryLead:  opts.ExpiryLead,
		now:         opts.Now,
		state:       StateBuilt,
		done:        make(chan struct{}),
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = DefaultStopTimeout
	}
	if s.expiryLead <= 0 {
		s.expiryLead = DefaultExpiryLead
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = logging.GetLogger("pipeline").With("session_id", s.id, "stream", params.StreamName)

	if tok, ok := creds.(credentials.SessionToken); ok {
		path, err := gstreamer.WriteCredentialFile(opts.CredentialsDir, tok)
		if err != nil {
			return nil, &BuildError{Stage: "credentials", Cause: err}
		}
		s.credFile = path
	}

	description, err := gstreamer.BuildDescription(params, creds, s.credFile)
	if err != nil {
		s.removeCredentialFile()
		return nil, &BuildError{Stage: "description", Cause: err}
	}
	s.description, _ = gstreamer.DescribeRedacted(params, creds, s.credFile)

	p, err := engine.Build(description)
	if err != nil {
		s.removeCredentialFile()
		return nil, &BuildError{Stage: "engine", Cause: err}
	}
	s.pipeline = p

	s.logger.Debug("Pipeline built", "description", s.description)
	return s, nil
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// Description returns the launch description with secrets redacted.
func (s *Session) Description() string { return s.description }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start runs the pipeline in the background. It is a no-op unless the
// session is freshly built.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateBuilt {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = StateRunning

	if expiry, ok := credentials.Expiry(s.creds); ok {
		delay := expiry.Add(-s.expiryLead).Sub(s.now())
		if delay < 0 {
			delay = 0
		}
		s.timer = time.AfterFunc(delay, s.credentialsExpiring)
		s.logger.Debug("Credential expiry timer armed", "fires_in", delay)
	}

	go s.run(ctx)
	s.logger.Info("Pipeline started")
}

// Stop tears the pipeline down and waits up to the stop timeout for it to
// finish. It is idempotent. No events are published once Stop returns.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	wasRunning := s.state == StateRunning
	s.state = StateStopped
	s.stopRequested = true
	if s.timer != nil {
		s.timer.Stop()
	}
	cancel := s.cancel
	s.mu.Unlock()

	var err error
	if wasRunning {
		cancel()
		select {
		case <-s.done:
		case <-time.After(s.stopTimeout):
			s.logger.Warn("Pipeline did not stop in time", "timeout", s.stopTimeout)
			err = ErrStopTimeout
		}
	} else {
		close(s.done)
	}

	s.removeCredentialFile()
	s.logger.Info("Pipeline stopped")
	return err
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	err := s.pipeline.Run(ctx, func(msg Message) { s.report(ctx, msg) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRequested {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	switch {
	case s.terminal != nil:
		s.publishLocked(*s.terminal)
	case err != nil:
		s.publishLocked(Message{Kind: gstreamer.MessageError, Source: "pipeline", Code: 1, Text: err.Error()})
	default:
		s.publishLocked(Message{Kind: gstreamer.MessageEOS, Source: "pipeline"})
	}
}

// report handles a bus message from the engine. The first EOS or error is
// kept as the terminal message and tears the pipeline down.
func (s *Session) report(ctx context.Context, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRequested {
		return
	}

	switch msg.Kind {
	case gstreamer.MessageWarning:
		s.logger.Warn("Pipeline warning", "source", msg.Source, "message", msg.Text)
		s.publishLocked(msg)
	case gstreamer.MessageEOS, gstreamer.MessageError:
		if s.terminal != nil {
			return
		}
		m := msg
		s.terminal = &m
		if ctx.Err() == nil {
			s.cancel()
		}
	}
}

func (s *Session) credentialsExpiring() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning || s.stopRequested || s.terminal != nil {
		return
	}
	s.logger.Info("Session credentials about to expire")
	s.publish(Event{Kind: events.PipelineCredentialsExpiring, SessionID: s.id, Source: "credentials"})
}

// publishLocked converts a bus message to an event. Caller holds s.mu.
func (s *Session) publishLocked(msg Message) {
	ev := Event{SessionID: s.id, Source: msg.Source, Code: msg.Code, Message: msg.Text}
	switch msg.Kind {
	case gstreamer.MessageEOS:
		ev.Kind = events.PipelineEnd
		s.logger.Info("Pipeline reached end of stream", "source", msg.Source)
	case gstreamer.MessageError:
		ev.Kind = events.PipelineError
		s.logger.Error("Pipeline error", "source", msg.Source, "code", msg.Code, "message", msg.Text)
	case gstreamer.MessageWarning:
		ev.Kind = events.PipelineWarning
	default:
		return
	}
	s.publish(ev)
}

func (s *Session) publish(ev Event) {
	if s.bus == nil {
		return
	}
	ev.Timestamp = time.Now()
	s.bus.Publish(ev)
}

func (s *Session) removeCredentialFile() {
	if s.credFile == "" {
		return
	}
	if err := os.Remove(s.credFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove credential file", "path", s.credFile, "error", err)
	}
}
