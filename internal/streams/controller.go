package streams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/kvsnode/internal/credentials"
	"github.com/smazurov/kvsnode/internal/events"
	"github.com/smazurov/kvsnode/internal/logging"
	"github.com/smazurov/kvsnode/internal/pipeline"
)

// Response messages produced by the controller.
const (
	MessageStarted       = "Stream started"
	MessageStopped       = "Streaming is stopped"
	MessageNoStream      = "No stream running"
	MessageActive        = "Stream active"
	MessageRestarting    = "Restarting stream"
	MessageRestartLimit  = "Restart limit reached, streaming is stopped"
	inboxSize            = 16
	restartReasonError   = "error"
	restartReasonExpired = "credentials_expiring"
)

// ErrControllerClosed is returned by Handle after Close.
var ErrControllerClosed = NewStreamError(ErrCodeControllerShutdown, "controller is closed", nil)

// Publisher delivers a response to the output topic.
type Publisher interface {
	Publish(ctx context.Context, r Response) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, r Response) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, r Response) error { return f(ctx, r) }

// RestartPolicy bounds event-driven restarts. The zero value restarts on
// every error or credential expiry, immediately and without limit.
type RestartPolicy struct {
	// MaxAttempts caps consecutive restarts. Zero means unlimited.
	MaxAttempts int
	// Backoff delays each restart.
	Backoff time.Duration
}

// Config wires a Controller to its collaborators.
type Config struct {
	Engine      pipeline.Engine
	Credentials credentials.Source
	Publisher   Publisher
	// Bus carries pipeline events to the controller. A private bus is
	// created when nil.
	Bus     *events.Bus
	Session pipeline.Options
	Restart RestartPolicy
}

type current struct {
	session *pipeline.Session
	params  ConnectionParameters
	// set while a restart waits out the backoff
	restarting bool
}

type request struct {
	ctx   context.Context
	cmd   Command
	reply chan result
}

type result struct {
	resp Response
	err  error
}

type restartTick struct {
	sessionID string
	reason    string
}

// Controller owns the single active stream. All commands and pipeline events
// are handled one at a time on the controller goroutine.
type Controller struct {
	engine    pipeline.Engine
	source    credentials.Source
	publisher Publisher
	bus       *events.Bus
	sessOpts  pipeline.Options
	policy    RestartPolicy
	logger    *slog.Logger

	inbox       chan any
	quit        chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc

	// Owned by the controller goroutine.
	current  *current
	restarts int
}

// NewController creates a controller and starts its goroutine.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Engine == nil {
		return nil, errors.New("controller requires a pipeline engine")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("controller requires a credential source")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("controller requires a publisher")
	}
	if cfg.Bus == nil {
		cfg.Bus = events.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		engine:    cfg.Engine,
		source:    cfg.Credentials,
		publisher: cfg.Publisher,
		bus:       cfg.Bus,
		sessOpts:  cfg.Session,
		policy:    cfg.Restart,
		logger:    logging.GetLogger("controller"),
		inbox:     make(chan any, inboxSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.sessOpts.Bus = cfg.Bus

	c.unsubscribe = c.bus.Subscribe(func(e events.PipelineEvent) { c.enqueue(e) })
	go c.loop()
	return c, nil
}

// Bus returns the event bus sessions publish on.
func (c *Controller) Bus() *events.Bus { return c.bus }

// Handle executes cmd and returns the response for the caller. The error is
// non-nil only when a side-effect publish failed or the controller is closed.
func (c *Controller) Handle(ctx context.Context, cmd Command) (Response, error) {
	switch cmd.Kind {
	case CommandMissing:
		return NewResponse(StatusError, MessageMissingInput), nil
	case CommandInvalid:
		reason := cmd.Reason
		if reason == "" {
			reason = MessageInvalidTask
		}
		return NewResponse(StatusError, reason), nil
	}

	req := request{ctx: ctx, cmd: cmd, reply: make(chan result, 1)}
	select {
	case c.inbox <- req:
	case <-c.done:
		return Response{}, ErrControllerClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.resp, res.err
	case <-c.done:
		return Response{}, ErrControllerClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Close stops the current session and terminates the controller goroutine.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.unsubscribe()
		close(c.quit)
		<-c.done
		c.cancel()
	})
	return nil
}

func (c *Controller) enqueue(msg any) {
	select {
	case c.inbox <- msg:
	case <-c.done:
	}
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			if c.current != nil {
				c.stopCurrent("shutdown")
			}
			c.logger.Debug("Controller stopped")
			return
		case msg := <-c.inbox:
			c.dispatch(msg)
		}
	}
}

func (c *Controller) dispatch(msg any) {
	switch m := msg.(type) {
	case request:
		resp, err := c.handleCommand(m.ctx, m.cmd)
		m.reply <- result{resp: resp, err: err}
	case events.PipelineEvent:
		c.handleEvent(m)
	case restartTick:
		if c.current == nil || c.current.session.ID() != m.sessionID {
			c.logger.Debug("Dropping restart for replaced session", "session_id", m.sessionID)
			return
		}
		c.restartNow(m.reason)
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd Command) (Response, error) {
	switch cmd.Kind {
	case CommandStart:
		c.restarts = 0
		return c.start(ctx, cmd.Params, "started")
	case CommandStop:
		if c.current != nil {
			c.stopCurrent("stopped")
		}
		return NewResponse(StatusSuccess, MessageStopped), nil
	case CommandStatus:
		if c.current == nil {
			return NewResponse(StatusNotice, MessageNoStream), nil
		}
		if c.current.restarting {
			return NewResponse(StatusNotice, MessageRestarting).WithExtra(c.current.params), nil
		}
		return NewResponse(StatusNotice, MessageActive).WithExtra(c.current.params), nil
	default:
		return NewResponse(StatusError, MessageInvalidTask), nil
	}
}

// start replaces any current session with a new one built from params.
func (c *Controller) start(ctx context.Context, params ConnectionParameters, reason string) (Response, error) {
	if err := params.Validate(); err != nil {
		c.logger.Warn("Rejected start command", "error", err)
		return errorResponse(err), nil
	}

	if c.current != nil {
		c.stopCurrent("replaced")
		if err := c.publish(ctx, NewResponse(StatusSuccess, MessageStopped)); err != nil {
			return Response{}, err
		}
	}

	creds, err := c.source.Resolve(ctx)
	if err != nil {
		se := NewStreamError(ErrCodeCredentials, "failed to resolve credentials", err)
		c.logger.Error("Stream start failed", "stream", params.StreamName, "error", se)
		return errorResponse(se), nil
	}

	session, err := pipeline.NewSession(c.engine, params.ToGstParams(), creds, c.sessOpts)
	if err != nil {
		se := NewStreamError(ErrCodePipelineBuild, "failed to build pipeline", err)
		c.logger.Error("Stream start failed", "stream", params.StreamName, "error", se)
		return errorResponse(se), nil
	}
	session.Start()

	c.current = &current{session: session, params: params}
	c.logger.Info("Stream started",
		"session_id", session.ID(),
		"stream", params.StreamName,
		"region", params.AWSRegion,
		"device", params.VideoDevice,
		"access_key", creds.AccessKey(),
		"description", session.Description())
	c.bus.Publish(events.StreamStateChangedEvent{
		SessionID:  session.ID(),
		StreamName: params.StreamName,
		Active:     true,
		Reason:     reason,
		Timestamp:  time.Now(),
	})
	return NewResponse(StatusSuccess, MessageStarted), nil
}

func (c *Controller) stopCurrent(reason string) {
	cur := c.current
	c.current = nil
	if err := cur.session.Stop(); err != nil {
		c.logger.Warn("Session did not stop cleanly", "session_id", cur.session.ID(), "error", err)
	}
	c.logger.Info("Stream stopped", "session_id", cur.session.ID(), "stream", cur.params.StreamName, "reason", reason)
	c.bus.Publish(events.StreamStateChangedEvent{
		SessionID:  cur.session.ID(),
		StreamName: cur.params.StreamName,
		Active:     false,
		Reason:     reason,
		Timestamp:  time.Now(),
	})
}

func (c *Controller) handleEvent(ev events.PipelineEvent) {
	if c.current == nil || c.current.session.ID() != ev.SessionID {
		c.logger.Debug("Ignoring event from stale session", "session_id", ev.SessionID, "kind", ev.Kind)
		return
	}

	switch ev.Kind {
	case events.PipelineEnd:
		c.publishEvent(NewResponse(StatusNotice, "End of stream from "+ev.Source))
		c.stopCurrent("end")
	case events.PipelineError:
		msg := fmt.Sprintf("Error from %s: %s", ev.Source, ev.Message)
		c.publishEvent(NewResponse(StatusError, msg).WithCode(ev.Code))
		c.restart(restartReasonError)
	case events.PipelineWarning:
		msg := fmt.Sprintf("Warning from %s: %s", ev.Source, ev.Message)
		c.publishEvent(NewResponse(StatusWarning, msg).WithCode(ev.Code))
	case events.PipelineCredentialsExpiring:
		c.restart(restartReasonExpired)
	}
}

// restart applies the restart policy to the current session.
func (c *Controller) restart(reason string) {
	cur := c.current
	if c.policy.MaxAttempts > 0 && c.restarts >= c.policy.MaxAttempts {
		c.logger.Error("Restart limit reached", "session_id", cur.session.ID(), "attempts", c.restarts)
		c.stopCurrent("restart_limit")
		c.publishEvent(NewResponse(StatusError, MessageRestartLimit))
		return
	}

	c.publishEvent(NewResponse(StatusNotice, MessageRestarting))
	c.restarts++
	c.bus.Publish(events.StreamRestartEvent{
		SessionID: cur.session.ID(),
		Reason:    reason,
		Attempt:   c.restarts,
		Timestamp: time.Now(),
	})

	if c.policy.Backoff > 0 {
		cur.restarting = true
		tick := restartTick{sessionID: cur.session.ID(), reason: reason}
		c.logger.Info("Restart scheduled", "session_id", tick.sessionID, "reason", reason, "backoff", c.policy.Backoff)
		time.AfterFunc(c.policy.Backoff, func() { c.enqueue(tick) })
		return
	}
	c.restartNow(reason)
}

// restartNow runs the start logic with the recorded parameters. Nobody
// waits for the result, so it is published.
func (c *Controller) restartNow(reason string) {
	params := c.current.params
	c.logger.Info("Restarting stream", "stream", params.StreamName, "reason", reason, "attempt", c.restarts)

	resp, err := c.start(c.ctx, params, "restarted")
	if err != nil {
		c.logger.Error("Restart aborted", "error", err)
		return
	}
	c.publishEvent(resp)
}

func (c *Controller) publish(ctx context.Context, r Response) error {
	if err := c.publisher.Publish(ctx, r); err != nil {
		return NewStreamError(ErrCodePublish, "failed to publish response", err)
	}
	return nil
}

// publishEvent publishes an unsolicited response. There is no caller to
// return a failure to, so it is logged.
func (c *Controller) publishEvent(r Response) {
	if err := c.publish(c.ctx, r); err != nil {
		c.logger.Error("Failed to publish event response", "status", r.Status, "message", r.Message, "error", err)
	}
}
