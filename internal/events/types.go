package events

import "time"

// Event type constants for kelindar/event.
const (
	TypePipeline uint32 = iota + 1
	TypeStreamStateChanged
	TypeStreamRestart
	TypeResponsePublished
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// PipelineEventKind distinguishes the notifications a pipeline session emits.
type PipelineEventKind string

// Pipeline event kinds.
const (
	PipelineEnd                 PipelineEventKind = "end"
	PipelineError               PipelineEventKind = "error"
	PipelineWarning             PipelineEventKind = "warning"
	PipelineCredentialsExpiring PipelineEventKind = "credentials_expiring"
)

// Terminal reports whether the kind ends the session.
func (k PipelineEventKind) Terminal() bool {
	return k == PipelineEnd || k == PipelineError
}

// PipelineEvent is emitted by a pipeline session. All kinds share one event
// type so a subscriber sees them in emission order.
type PipelineEvent struct {
	Kind      PipelineEventKind `json:"kind" example:"error" doc:"Event kind"`
	SessionID string            `json:"session_id" doc:"Session that emitted the event"`
	Source    string            `json:"source,omitempty" example:"v4l2src0" doc:"Pipeline element that raised the event"`
	Code      int               `json:"code,omitempty" doc:"Engine error code"`
	Message   string            `json:"message,omitempty" doc:"Human readable detail"`
	Timestamp time.Time         `json:"timestamp" doc:"Emission time"`
}

// Type returns the event type identifier for PipelineEvent.
func (e PipelineEvent) Type() uint32 { return TypePipeline }

// StreamStateChangedEvent is emitted when the controller starts or drops a session.
type StreamStateChangedEvent struct {
	SessionID  string    `json:"session_id"`
	StreamName string    `json:"stream_name" example:"front-door"`
	Active     bool      `json:"active"`
	Reason     string    `json:"reason,omitempty" example:"stopped"`
	Timestamp  time.Time `json:"timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// StreamRestartEvent is emitted each time the controller restarts a stream.
type StreamRestartEvent struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason" example:"error"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for StreamRestartEvent.
func (e StreamRestartEvent) Type() uint32 { return TypeStreamRestart }

// ResponsePublishedEvent is emitted after a response reaches the output topic.
type ResponsePublishedEvent struct {
	Status    string    `json:"status" example:"SUCCESS"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ResponsePublishedEvent.
func (e ResponsePublishedEvent) Type() uint32 { return TypeResponsePublished }
