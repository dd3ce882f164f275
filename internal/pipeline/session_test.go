package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/kvsnode/internal/credentials"
	"github.com/smazurov/kvsnode/internal/events"
	"github.com/smazurov/kvsnode/internal/gstreamer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	runs atomic.Int32
	run  func(ctx context.Context, report func(Message)) error
}

func (p *fakePipeline) Run(ctx context.Context, report func(Message)) error {
	p.runs.Add(1)
	return p.run(ctx, report)
}

type fakeEngine struct {
	mu           sync.Mutex
	descriptions []string
	pipeline     *fakePipeline
	err          error
}

func (e *fakeEngine) Build(description string) (Pipeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.descriptions = append(e.descriptions, description)
	if e.err != nil {
		return nil, e.err
	}
	return e.pipeline, nil
}

// untilCancelled blocks like a healthy pipeline until it is torn down.
func untilCancelled(ctx context.Context, _ func(Message)) error {
	<-ctx.Done()
	return nil
}

func testParams() gstreamer.Params {
	return gstreamer.Params{
		DevicePath: "/dev/video0",
		Width:      640, Height: 480, FrameRate: 30,
		BitRate: 500, KeyIntMax: 45,
		StreamName: "cam", Region: "us-west-2",
	}
}

var staticKeys = credentials.StaticKeys{AccessKeyID: "A", SecretAccessKey: "S"}

type eventRecorder struct {
	ch chan Event
}

func recordEvents(t *testing.T, bus *events.Bus) *eventRecorder {
	t.Helper()
	r := &eventRecorder{ch: make(chan Event, 16)}
	unsub := bus.Subscribe(func(e Event) { r.ch <- e })
	t.Cleanup(unsub)
	return r
}

func (r *eventRecorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for pipeline event")
		return Event{}
	}
}

func (r *eventRecorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-r.ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(wait):
	}
}

func newTestSession(t *testing.T, engine Engine, creds credentials.Credentials, opts Options) *Session {
	t.Helper()
	s, err := NewSession(engine, testParams(), creds, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestSessionEndIsSingleTerminalEvent(t *testing.T) {
	bus := events.New()
	rec := recordEvents(t, bus)
	fp := &fakePipeline{run: func(ctx context.Context, report func(Message)) error {
		report(Message{Kind: gstreamer.MessageEOS, Source: "pipeline0"})
		report(Message{Kind: gstreamer.MessageError, Source: "kvssink0", Text: "late"})
		<-ctx.Done()
		return nil
	}}

	s := newTestSession(t, &fakeEngine{pipeline: fp}, staticKeys, Options{Bus: bus})
	s.Start()

	ev := rec.next(t)
	assert.Equal(t, events.PipelineEnd, ev.Kind)
	assert.Equal(t, s.ID(), ev.SessionID)
	assert.Equal(t, "pipeline0", ev.Source)
	rec.none(t, 50*time.Millisecond)

	<-s.done
	assert.Equal(t, StateRunning, s.State(), "internal end does not mark the session stopped")
}

func TestSessionErrorCarriesCode(t *testing.T) {
	bus := events.New()
	rec := recordEvents(t, bus)
	fp := &fakePipeline{run: func(_ context.Context, report func(Message)) error {
		report(Message{Kind: gstreamer.MessageError, Source: "v4l2src0", Code: 7, Text: "device busy"})
		return nil
	}}

	s := newTestSession(t, &fakeEngine{pipeline: fp}, staticKeys, Options{Bus: bus})
	s.Start()

	ev := rec.next(t)
	assert.Equal(t, events.PipelineError, ev.Kind)
	assert.Equal(t, 7, ev.Code)
	assert.Equal(t, "device busy", ev.Message)
	assert.Equal(t, "v4l2src0", ev.Source)
}

func TestSessionWarningsPrecedeTerminal(t *testing.T) {
	bus := events.New()
	rec := recordEvents(t, bus)
	fp := &fakePipeline{run: func(_ context.Context, report func(Message)) error {
		report(Message{Kind: gstreamer.MessageWarning, Source: "x264enc0", Text: "slow"})
		report(Message{Kind: gstreamer.MessageEOS, Source: "pipeline0"})
		return nil
	}}

	s := newTestSession(t, &fakeEngine{pipeline: fp}, staticKeys, Options{Bus: bus})
	s.Start()

	assert.Equal(t, events.PipelineWarning, rec.next(t).Kind)
	assert.Equal(t, events.PipelineEnd, rec.next(t).Kind)
}

func TestSessionRunErrorWithoutMessage(t *testing.T) {
	bus := events.New()
	rec := recordEvents(t, bus)
	fp := &fakePipeline{run: func(context.Context, func(Message)) error {
		return errors.New("launcher crashed")
	}}

	s := newTestSession(t, &fakeEngine{pipeline: fp}, staticKeys, Options{Bus: bus})
	s.Start()

	ev := rec.next(t)
	assert.Equal(t, events.PipelineError, ev.Kind)
	assert.Equal(t, 1, ev.Code)
	assert.Contains(t, ev.Message, "launcher crashed")
}

func TestSessionStopPublishesNothing(t *testing.T) {
	bus := events.New()
	rec := recordEvents(t, bus)
	fp := &fakePipeline{run: func(ctx context.Context, report func(Message)) error {
		<-ctx.Done()
		// A pipeline flushing on the way out must not leak events.
		report(Message{Kind: gstreamer.MessageEOS, Source: "pipeline0"})
		return nil
	}}

	s := newTestSession(t, &fakeEngine{pipeline: fp}, staticKeys, Options{Bus: bus})
	s.Start()
	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())
	require.NoError(t, s.Stop(), "Stop is idempotent")

	rec.none(t, 50*time.Millisecond)
}

func TestSessionStartIsIdempotent(t *testing.T) {
	fp := &fakePipeline{run: untilCancelled}
	s := newTestSession(t, &fakeEngine{pipeline: fp}, staticKeys, Options{})

	s.Start()
	s.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fp.runs.Load())

	require.NoError(t, s.Stop())
	s.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fp.runs.Load(), "a stopped session cannot be restarted")
}

func TestSessionStopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fp := &fakePipeline{run: func(context.Context, func(Message)) error {
		<-release
		return nil
	}}

	s := newTestSession(t, &fakeEngine{pipeline: fp}, staticKeys, Options{StopTimeout: 50 * time.Millisecond})
	s.Start()

	start := time.Now()
	err := s.Stop()
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.True(t, time.Since(start) < time.Second, "Stop should give up after the stop timeout")
	assert.Equal(t, StateStopped, s.State())
}

func TestSessionStopBeforeStart(t *testing.T) {
	fp := &fakePipeline{run: untilCancelled}
	s := newTestSession(t, &fakeEngine{pipeline: fp}, staticKeys, Options{})

	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, fp.runs.Load())
	select {
	case <-s.done:
	default:
		t.Error("done should be closed for a session stopped before start")
	}
}

func TestSessionCredentialFileLifecycle(t *testing.T) {
	dir := t.TempDir()
	token := credentials.SessionToken{
		AccessKeyID: "A", SecretAccessKey: "S", Token: "T",
		Expiration: time.Now().Add(time.Hour),
	}
	engine := &fakeEngine{pipeline: &fakePipeline{run: untilCancelled}}

	s := newTestSession(t, engine, token, Options{CredentialsDir: dir})
	path := s.credFile
	require.NotEmpty(t, path)
	assert.FileExists(t, path)
	assert.Contains(t, engine.descriptions[0], "credential-path="+path)
	assert.NotContains(t, engine.descriptions[0], "access-key")

	s.Start()
	require.NoError(t, s.Stop())
	assert.NoFileExists(t, path)
}

func TestSessionCredentialsExpiring(t *testing.T) {
	bus := events.New()
	rec := recordEvents(t, bus)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token := credentials.SessionToken{
		AccessKeyID: "A", SecretAccessKey: "S", Token: "T",
		Expiration: now.Add(20 * time.Second),
	}

	s := newTestSession(t, &fakeEngine{pipeline: &fakePipeline{run: untilCancelled}}, token, Options{
		Bus:            bus,
		CredentialsDir: t.TempDir(),
		Now:            func() time.Time { return now },
	})
	s.Start()

	ev := rec.next(t)
	assert.Equal(t, events.PipelineCredentialsExpiring, ev.Kind)
	assert.Equal(t, s.ID(), ev.SessionID)
}

func TestSessionExpiryTimerCancelledByStop(t *testing.T) {
	bus := events.New()
	rec := recordEvents(t, bus)
	now := time.Now()
	token := credentials.SessionToken{
		AccessKeyID: "A", SecretAccessKey: "S", Token: "T",
		Expiration: now.Add(DefaultExpiryLead + 100*time.Millisecond),
	}

	s := newTestSession(t, &fakeEngine{pipeline: &fakePipeline{run: untilCancelled}}, token, Options{
		Bus:            bus,
		CredentialsDir: t.TempDir(),
		Now:            func() time.Time { return now },
	})
	s.Start()
	require.NoError(t, s.Stop())

	rec.none(t, 250*time.Millisecond)
}

func TestNewSessionBuildErrors(t *testing.T) {
	dir := t.TempDir()
	token := credentials.SessionToken{AccessKeyID: "A", SecretAccessKey: "S", Token: "T", Expiration: time.Now().Add(time.Hour)}

	_, err := NewSession(&fakeEngine{err: errors.New("no element kvssink")}, testParams(), token, Options{CredentialsDir: dir})
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "engine", buildErr.Stage)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "credential file must be removed when the build fails")

	bad := testParams()
	bad.StreamName = ""
	_, err = NewSession(&fakeEngine{pipeline: &fakePipeline{run: untilCancelled}}, bad, staticKeys, Options{})
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "description", buildErr.Stage)
	assert.ErrorIs(t, err, gstreamer.ErrInvalidParams)
}

func TestNewSessionMissingElement(t *testing.T) {
	engine, err := NewLaunchEngine("sh -c", nil, 0, WithInspector(kvssinkMissing))
	require.NoError(t, err)

	_, err = NewSession(engine, testParams(), staticKeys, Options{})
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "engine", buildErr.Stage)
	assert.ErrorIs(t, err, ErrElementUnavailable)
}

func TestSessionIDsAreUnique(t *testing.T) {
	engine := &fakeEngine{pipeline: &fakePipeline{run: untilCancelled}}
	a := newTestSession(t, engine, staticKeys, Options{})
	b := newTestSession(t, engine, staticKeys, Options{})
	assert.NotEqual(t, a.ID(), b.ID())
}
