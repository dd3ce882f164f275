package streams

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the severity of a Response.
type Status string

// Response statuses.
const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
	StatusWarning Status = "WARNING"
	StatusNotice  Status = "NOTICE"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusError, StatusWarning, StatusNotice:
		return true
	}
	return false
}

// Response is the status message returned for a command and published to
// the output topic.
type Response struct {
	Message string `json:"message" example:"Stream started" doc:"Human readable message"`
	Status  Status `json:"status" enum:"SUCCESS,ERROR,WARNING,NOTICE" doc:"Severity"`
	Code    *int   `json:"code,omitempty" doc:"Pipeline error or warning code"`
	Extra   any    `json:"extra,omitempty" doc:"Structured payload, the stream parameters for status queries"`
}

// NewResponse creates a response without code or extra payload.
func NewResponse(status Status, message string) Response {
	return Response{Message: message, Status: status}
}

// WithCode returns a copy of r carrying code.
func (r Response) WithCode(code int) Response {
	r.Code = &code
	return r
}

// WithExtra returns a copy of r carrying extra.
func (r Response) WithExtra(extra any) Response {
	r.Extra = extra
	return r
}

// JSON returns the canonical JSON encoding.
func (r Response) JSON() ([]byte, error) {
	return json.Marshal(r)
}

// ParseResponse decodes a response produced by JSON. Extra decodes into
// generic JSON values.
func ParseResponse(data []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if !r.Status.Valid() {
		return Response{}, fmt.Errorf("unknown response status %q", r.Status)
	}
	return r, nil
}

func errorResponse(err error) Response {
	var se *StreamError
	if errors.As(err, &se) {
		return NewResponse(StatusError, se.Detail())
	}
	return NewResponse(StatusError, err.Error())
}
