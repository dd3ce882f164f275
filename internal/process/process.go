package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/kvsnode/internal/logging"
)

// ExitCodeKilled is returned when the process had to be force-killed.
const ExitCodeKilled = 137

const (
	defaultGracefulTimeout = 5 * time.Second
	defaultKillTimeout     = 5 * time.Second
)

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// OutputHandlerFunc adapts a function to OutputHandler.
type OutputHandlerFunc func(source, line string)

// HandleLine calls f.
func (f OutputHandlerFunc) HandleLine(source, line string) { f(source, line) }

// LogParser maps an output line to a log level and message.
type LogParser func(line string) (slog.Level, string)

// Process supervises one subprocess run.
type Process struct {
	id     string
	args   []string
	env    []string
	logger logging.Logger

	outputLogger    *slog.Logger
	logParser       LogParser
	outputHandler   OutputHandler
	gracefulTimeout time.Duration
	killTimeout     time.Duration

	mu        sync.Mutex
	state     State
	pid       int
	startedAt time.Time
	exitCode  int
	lastErr   error
}

// Option configures a Process.
type Option func(*Process)

// WithEnv appends entries to the inherited environment.
func WithEnv(env ...string) Option {
	return func(p *Process) { p.env = append(p.env, env...) }
}

// WithOutputHandler receives every stdout/stderr line.
func WithOutputHandler(h OutputHandler) Option {
	return func(p *Process) { p.outputHandler = h }
}

// WithLogParser logs process output through logger using parser for levels.
func WithLogParser(logger *slog.Logger, parser LogParser) Option {
	return func(p *Process) {
		p.outputLogger = logger
		p.logParser = parser
	}
}

// WithGracefulTimeout sets how long to wait after SIGINT before SIGKILL.
func WithGracefulTimeout(d time.Duration) Option {
	return func(p *Process) { p.gracefulTimeout = d }
}

// WithKillTimeout sets how long to wait after SIGKILL before giving up.
func WithKillTimeout(d time.Duration) Option {
	return func(p *Process) { p.killTimeout = d }
}

// New creates a process for args. args[0] is the executable.
func New(id string, args []string, logger logging.Logger, opts ...Option) *Process {
	p := &Process{
		id:              id,
		args:            args,
		logger:          logger,
		gracefulTimeout: defaultGracefulTimeout,
		killTimeout:     defaultKillTimeout,
		state:           StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromCommand splits a shell-like command line and creates a process.
func NewFromCommand(id, command string, logger logging.Logger, opts ...Option) (*Process, error) {
	args, err := ParseCommand(command)
	if err != nil {
		return nil, err
	}
	return New(id, args, logger, opts...), nil
}

// Info returns a snapshot of the process state.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		ID:        p.id,
		State:     p.state,
		PID:       p.pid,
		StartedAt: p.startedAt,
		ExitCode:  p.exitCode,
		LastError: p.lastErr,
	}
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run starts the subprocess and blocks until it exits. Cancelling ctx sends
// SIGINT and escalates to SIGKILL after the graceful timeout. The returned
// error is non-nil only when the process could not be started.
func (p *Process) Run(ctx context.Context) (int, error) {
	if len(p.args) == 0 {
		return 1, p.fail(errors.New("empty command"))
	}

	p.setState(StateStarting)

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 1, p.fail(fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 1, p.fail(fmt.Errorf("stderr pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return 1, p.fail(fmt.Errorf("start %s: %w", p.args[0], err))
	}

	p.mu.Lock()
	p.state = StateRunning
	p.pid = cmd.Process.Pid
	p.startedAt = time.Now()
	p.mu.Unlock()
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", strings.Join(p.args, " "))

	var output sync.WaitGroup
	output.Add(2)
	go func() {
		defer output.Done()
		p.streamOutput(stdout, "stdout")
	}()
	go func() {
		defer output.Done()
		p.streamOutput(stderr, "stderr")
	}()

	// Pipes must be drained before Wait closes them.
	processDone := make(chan error, 1)
	go func() {
		output.Wait()
		processDone <- cmd.Wait()
	}()

	var exitCode int
	select {
	case <-ctx.Done():
		p.setState(StateStopping)
		p.logger.Info("Stopping process", "id", p.id, "pid", cmd.Process.Pid)
		p.interrupt(cmd)
		exitCode = p.waitForExit(cmd, processDone)
	case processErr := <-processDone:
		exitCode = exitCodeFromError(processErr)
		if processErr != nil && exitCode == 1 {
			p.logger.Error("Process exited with error", "id", p.id, "error", processErr)
		}
	}

	p.mu.Lock()
	p.state = StateExited
	p.exitCode = exitCode
	p.mu.Unlock()
	p.logger.Info("Process exited", "id", p.id, "exit_code", exitCode)
	return exitCode, nil
}

func (p *Process) fail(err error) error {
	p.mu.Lock()
	p.state = StateError
	p.lastErr = err
	p.mu.Unlock()
	p.logger.Error("Failed to start process", "id", p.id, "error", err)
	return err
}

// interrupt sends SIGINT to the subprocess without waiting.
func (p *Process) interrupt(cmd *exec.Cmd) {
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "id", p.id, "error", err)
	}
}

// waitForExit waits for the process to exit, force-killing it after the
// graceful timeout.
func (p *Process) waitForExit(cmd *exec.Cmd, processDone <-chan error) int {
	select {
	case err := <-processDone:
		return exitCodeFromError(err)
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
	// Kill the whole group so children holding the pipes die too.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Error("Failed to kill process", "id", p.id, "error", err)
	}

	select {
	case <-processDone:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
	}
	return ExitCodeKilled
}

// exitCodeFromError returns 0 for nil, the exit code for an ExitError, and 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		if p.outputLogger == nil {
			continue
		}
		level, msg := slog.LevelInfo, line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}
		p.outputLogger.Log(context.Background(), level, msg, "stream", source)
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}

// ParseCommand splits a command line into arguments. Single and double
// quotes group words and a backslash escapes the next rune.
func ParseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	hasArg := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote, quoteChar, hasArg = true, r, true
			case r == quoteChar:
				inQuote, quoteChar = false, 0
			default:
				current.WriteRune(r)
			}
		case (r == ' ' || r == '\t') && !inQuote:
			if hasArg {
				args = append(args, current.String())
				current.Reset()
				hasArg = false
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
			hasArg = true
		default:
			current.WriteRune(r)
			hasArg = true
		}
	}

	if inQuote {
		return nil, errors.New("unclosed quote in command")
	}
	if hasArg {
		args = append(args, current.String())
	}
	return args, nil
}
