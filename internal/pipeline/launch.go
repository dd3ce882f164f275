package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/kvsnode/internal/gstreamer"
	"github.com/smazurov/kvsnode/internal/logging"
	"github.com/smazurov/kvsnode/internal/process"
	"github.com/smazurov/kvsnode/internal/version"
)

// DefaultLauncher is the command prefix the launch engine runs descriptions with.
const DefaultLauncher = "gst-launch-1.0 -e"

const (
	launchBinary   = "gst-launch-1.0"
	inspectBinary  = "gst-inspect-1.0"
	inspectTimeout = 5 * time.Second
)

// ErrElementUnavailable is returned by Build when a description names an
// element factory that is not installed.
var ErrElementUnavailable = errors.New("element not available")

// LaunchEngine runs each pipeline as a gst-launch-1.0 subprocess and reads
// bus messages from its output.
type LaunchEngine struct {
	launcher        []string
	inspector       []string
	env             []string
	gracefulTimeout time.Duration
}

// LaunchOption configures a LaunchEngine.
type LaunchOption func(*LaunchEngine)

// WithInspector sets the command used to check element factories before a
// pipeline is built. It is run as `<inspector> --exists <factory>`. An empty
// command disables the check.
func WithInspector(command string) LaunchOption {
	return func(e *LaunchEngine) {
		e.inspector = nil
		if args, err := process.ParseCommand(command); err == nil {
			e.inspector = args
		}
	}
}

// NewLaunchEngine parses launcher (DefaultLauncher when empty) and returns an
// engine that appends env to the inherited environment of every pipeline.
// gracefulTimeout bounds the wait after SIGINT before the process is killed.
//
// When the launcher is gst-launch-1.0, gst-inspect-1.0 from the same
// directory checks element factories in Build unless WithInspector says
// otherwise.
func NewLaunchEngine(launcher string, env []string, gracefulTimeout time.Duration, opts ...LaunchOption) (*LaunchEngine, error) {
	if strings.TrimSpace(launcher) == "" {
		launcher = DefaultLauncher
	}
	args, err := process.ParseCommand(launcher)
	if err != nil {
		return nil, fmt.Errorf("parse launcher %q: %w", launcher, err)
	}
	if len(args) == 0 {
		return nil, errors.New("empty launcher command")
	}
	e := &LaunchEngine{
		launcher:        args,
		env:             append([]string{"GST_DEBUG_NO_COLOR=1"}, env...),
		gracefulTimeout: gracefulTimeout,
	}
	if filepath.Base(args[0]) == launchBinary {
		e.inspector = []string{filepath.Join(filepath.Dir(args[0]), inspectBinary)}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Build checks that the launcher is runnable and that every element factory
// the description names is installed. Property values and links are still
// parsed by the launcher when the pipeline runs.
func (e *LaunchEngine) Build(description string) (Pipeline, error) {
	if strings.TrimSpace(description) == "" {
		return nil, errors.New("empty pipeline description")
	}
	if _, err := exec.LookPath(e.launcher[0]); err != nil {
		return nil, fmt.Errorf("launcher not available: %w", err)
	}
	if err := e.checkElements(description); err != nil {
		return nil, err
	}
	args := append(append([]string{}, e.launcher...), description)
	return &launchPipeline{engine: e, args: args}, nil
}

// checkElements runs the inspector for each factory in description. A
// missing inspector binary skips the check.
func (e *LaunchEngine) checkElements(description string) error {
	if len(e.inspector) == 0 {
		return nil
	}
	if _, err := exec.LookPath(e.inspector[0]); err != nil {
		logging.GetLogger("pipeline").Debug("Element check skipped", "inspector", e.inspector[0], "error", err)
		return nil
	}

	factories, err := ElementFactories(description)
	if err != nil {
		return err
	}
	for _, factory := range factories {
		ctx, cancel := context.WithTimeout(context.Background(), inspectTimeout)
		args := append(append([]string{}, e.inspector[1:]...), "--exists", factory)
		cmd := exec.CommandContext(ctx, e.inspector[0], args...)
		cmd.Env = append(os.Environ(), e.env...)
		err := cmd.Run()
		cancel()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return fmt.Errorf("%w: %s", ErrElementUnavailable, factory)
			}
			return fmt.Errorf("inspect %s: %w", factory, err)
		}
	}
	return nil
}

// ElementFactories returns the element factory names of a gst-launch
// description in order of first use. Caps filters and property assignments
// are skipped.
func ElementFactories(description string) ([]string, error) {
	tokens, err := process.ParseCommand(description)
	if err != nil {
		return nil, fmt.Errorf("parse pipeline description: %w", err)
	}

	var factories []string
	seen := make(map[string]bool)
	expectElement := true
	for _, tok := range tokens {
		if tok == "!" {
			if expectElement {
				return nil, errors.New("parse pipeline description: empty link")
			}
			expectElement = true
			continue
		}
		if !expectElement {
			continue
		}
		expectElement = false
		if strings.ContainsAny(tok, "/=,.") || seen[tok] {
			continue
		}
		seen[tok] = true
		factories = append(factories, tok)
	}
	if expectElement {
		return nil, errors.New("parse pipeline description: dangling link")
	}
	return factories, nil
}

// GStreamerVersion runs the launcher with --version and returns the
// GStreamer version it reports.
func (e *LaunchEngine) GStreamerVersion(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, inspectTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.launcher[0], "--version")
	cmd.Env = append(os.Environ(), e.env...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", e.launcher[0], err)
	}
	v := version.ParseGStreamerVersion(string(out))
	if v == "" {
		return "", fmt.Errorf("%s --version: no version in output", e.launcher[0])
	}
	return v, nil
}

type launchPipeline struct {
	engine *LaunchEngine
	args   []string
}

// Run starts the launcher and blocks until it exits. The first ERROR line
// becomes the terminal error, reported with the exit status once the
// process is gone. A clean exit without an error is reported as EOS.
func (p *launchPipeline) Run(ctx context.Context, report func(Message)) error {
	var mu sync.Mutex
	var firstError, eos *Message

	handler := process.OutputHandlerFunc(func(_, line string) {
		msg := gstreamer.ParseBusLine(line)
		mu.Lock()
		defer mu.Unlock()
		switch msg.Kind {
		case gstreamer.MessageWarning:
			report(msg)
		case gstreamer.MessageError:
			if firstError == nil {
				firstError = &msg
			}
		case gstreamer.MessageEOS:
			eos = &msg
		}
	})

	opts := []process.Option{
		process.WithEnv(p.engine.env...),
		process.WithOutputHandler(handler),
		process.WithLogParser(logging.GetLogger("gstreamer"), gstreamer.ParseLogLevel),
	}
	if p.engine.gracefulTimeout > 0 {
		opts = append(opts, process.WithGracefulTimeout(p.engine.gracefulTimeout))
	}
	proc := process.New("pipeline", p.args, logging.GetLogger("pipeline"), opts...)

	exitCode, err := proc.Run(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()
	switch {
	case firstError != nil:
		msg := *firstError
		msg.Code = exitCode
		if msg.Code == 0 {
			msg.Code = 1
		}
		report(msg)
	case exitCode != 0:
		report(Message{
			Kind:   gstreamer.MessageError,
			Source: filepath.Base(p.args[0]),
			Code:   exitCode,
			Text:   fmt.Sprintf("exited with status %d", exitCode),
		})
	default:
		source := "pipeline"
		if eos != nil && eos.Source != "" {
			source = eos.Source
		}
		report(Message{Kind: gstreamer.MessageEOS, Source: source})
	}
	return nil
}
