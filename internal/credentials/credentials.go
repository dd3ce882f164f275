// Package credentials resolves the cloud credentials handed to the upload sink.
//
// A credential is either a temporary [SessionToken] with an expiry, fetched
// from the container credential endpoint, or long-lived [StaticKeys]. The
// variant decides how the sink is configured and whether the stream must be
// restarted before the token expires.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Credentials is implemented only by SessionToken and StaticKeys.
type Credentials interface {
	isCredentials()
	// AccessKey returns the access key id, for logging.
	AccessKey() string
}

// SessionToken is a temporary credential that expires at Expiration.
type SessionToken struct {
	AccessKeyID     string
	SecretAccessKey string
	Token           string
	Expiration      time.Time
}

// StaticKeys is a long-lived access key pair with no expiry.
type StaticKeys struct {
	AccessKeyID     string
	SecretAccessKey string
}

func (SessionToken) isCredentials() {}
func (StaticKeys) isCredentials()   {}

// AccessKey returns the access key id.
func (s SessionToken) AccessKey() string { return s.AccessKeyID }

// AccessKey returns the access key id.
func (s StaticKeys) AccessKey() string { return s.AccessKeyID }

// Expiry returns the expiration time for session tokens. The second value is
// false for credentials that never expire.
func Expiry(c Credentials) (time.Time, bool) {
	switch v := c.(type) {
	case SessionToken:
		return v.Expiration, true
	case *SessionToken:
		return v.Expiration, true
	default:
		return time.Time{}, false
	}
}

// Source resolves a fresh set of credentials.
type Source interface {
	Resolve(ctx context.Context) (Credentials, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Credentials, error)

// Resolve calls f.
func (f SourceFunc) Resolve(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// FetchError reports why credentials could not be obtained.
type FetchError struct {
	// StatusCode is the HTTP status when the endpoint answered, otherwise 0.
	StatusCode int
	Message    string
	Cause      error

	retryable bool
}

func (e *FetchError) Error() string {
	msg := "credential fetch failed: " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

func fetchErrorf(status int, cause error, format string, args ...any) *FetchError {
	return &FetchError{StatusCode: status, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsFetchError reports whether err is, or wraps, a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
