// Package pipeline owns one running media pipeline and reports its fate.
//
// A [Session] is built from stream parameters and credentials by an
// [Engine], started once, and stopped once. While running it publishes
// [Event]s on the in-process event bus: warnings as they happen, then at
// most one terminal End or Error event, plus a CredentialsExpiring notice
// shortly before session credentials run out. A session that is stopped
// explicitly publishes nothing more.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/kvsnode/internal/events"
	"github.com/smazurov/kvsnode/internal/gstreamer"
)

// Message is one bus message reported by a running pipeline.
type Message = gstreamer.BusMessage

// Event is what a session publishes on the event bus.
type Event = events.PipelineEvent

// ErrStopTimeout is returned by Stop when the pipeline did not finish tearing
// down in time. The session is still considered stopped.
var ErrStopTimeout = errors.New("pipeline did not stop within timeout")

// Engine turns a launch description into a runnable pipeline.
type Engine interface {
	Build(description string) (Pipeline, error)
}

// Pipeline is a built media pipeline.
type Pipeline interface {
	// Run plays the pipeline and blocks until it ends or ctx is cancelled.
	// Bus messages are passed to report from the calling goroutine or the
	// engine's own. Cancellation asks for a graceful teardown and the engine
	// forces it when that takes too long.
	Run(ctx context.Context, report func(Message)) error
}

// BuildError reports a description or engine failure while building a session.
type BuildError struct {
	Stage string
	Cause error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("pipeline build failed (%s): %v", e.Stage, e.Cause)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}
