package streams

import "fmt"

// StreamError represents a domain-specific error
type StreamError struct {
	Code    string
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Detail is the human readable part of the error, without the code.
func (e *StreamError) Detail() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Error codes
const (
	ErrCodeInvalidParams      = "INVALID_PARAMS"
	ErrCodeCredentials        = "CREDENTIALS_ERROR"
	ErrCodePipelineBuild      = "PIPELINE_BUILD_ERROR"
	ErrCodePublish            = "PUBLISH_ERROR"
	ErrCodeControllerShutdown = "CONTROLLER_CLOSED"
)

// NewStreamError creates a new stream error
func NewStreamError(code, message string, cause error) *StreamError {
	return &StreamError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
