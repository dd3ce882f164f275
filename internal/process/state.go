package process

import "time"

// State is the lifecycle state of a supervised process.
type State string

// Process states.
const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateExited   State = "exited"
	StateError    State = "error" // failed to start
)

// Info is a snapshot of a supervised process.
type Info struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	ExitCode  int
	LastError error
}
