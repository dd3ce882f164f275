package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/smazurov/kvsnode/internal/logging"
)

const (
	defaultAttempts   = 3
	defaultRetryDelay = 500 * time.Millisecond
	defaultTimeout    = 10 * time.Second
	maxBodyBytes      = 64 << 10
)

// endpointResponse is the JSON document served by the container credential endpoint.
type endpointResponse struct {
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	Token           string `json:"Token"`
	Expiration      string `json:"Expiration"`
	RoleArn         string `json:"RoleArn,omitempty"`
}

// HTTPSource fetches session tokens from a container credential endpoint.
// Every Resolve performs a fresh request.
type HTTPSource struct {
	URL       string
	AuthToken string

	// Attempts bounds retries of transport errors and 5xx answers.
	Attempts uint
	Delay    time.Duration
	Client   *http.Client

	// now is overridable in tests.
	now    func() time.Time
	logger *slog.Logger
}

// NewHTTPSource returns an HTTPSource with default retry settings.
func NewHTTPSource(url, authToken string) *HTTPSource {
	return &HTTPSource{
		URL:       url,
		AuthToken: authToken,
		Attempts:  defaultAttempts,
		Delay:     defaultRetryDelay,
		Client:    &http.Client{Timeout: defaultTimeout},
		now:       time.Now,
		logger:    logging.GetLogger("credentials"),
	}
}

// Resolve fetches and validates a session token.
func (s *HTTPSource) Resolve(ctx context.Context) (Credentials, error) {
	attempts := s.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}

	var payload endpointResponse
	err := retry.New(
		retry.Attempts(attempts),
		retry.Delay(s.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			s.log().Warn("Credential fetch failed, retrying", "attempt", n+1, "error", err)
		}),
	).Do(func() error {
		var fetchErr error
		payload, fetchErr = s.fetch(ctx)
		return fetchErr
	})
	if err != nil {
		if IsFetchError(err) {
			return nil, err
		}
		return nil, fetchErrorf(0, err, "endpoint unreachable")
	}

	return s.validate(payload)
}

func (s *HTTPSource) fetch(ctx context.Context) (endpointResponse, error) {
	var payload endpointResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return payload, fetchErrorf(0, err, "invalid endpoint URL")
	}
	if s.AuthToken != "" {
		req.Header.Set("Authorization", s.AuthToken)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		fe := fetchErrorf(0, err, "request to %s failed", s.URL)
		fe.retryable = true
		return payload, fe
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return payload, fetchErrorf(resp.StatusCode, err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := fetchErrorf(resp.StatusCode, nil, "endpoint returned status %d", resp.StatusCode)
		fe.retryable = resp.StatusCode >= 500
		return payload, fe
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, fetchErrorf(resp.StatusCode, err, "malformed credential document")
	}
	return payload, nil
}

func (s *HTTPSource) validate(p endpointResponse) (Credentials, error) {
	required := []struct {
		name  string
		value string
	}{
		{"AccessKeyId", p.AccessKeyID},
		{"SecretAccessKey", p.SecretAccessKey},
		{"Token", p.Token},
		{"Expiration", p.Expiration},
	}
	for _, field := range required {
		if field.value == "" {
			return nil, fetchErrorf(0, nil, "missing field %s", field.name)
		}
	}

	expiration, err := time.Parse(time.RFC3339, p.Expiration)
	if err != nil {
		return nil, fetchErrorf(0, err, "invalid Expiration %q", p.Expiration)
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	if !expiration.After(now()) {
		return nil, fetchErrorf(0, nil, "credentials already expired at %s", expiration.Format(time.RFC3339))
	}

	s.log().Debug("Resolved session token", "access_key", p.AccessKeyID, "expiration", expiration, "role", p.RoleArn)
	return SessionToken{
		AccessKeyID:     p.AccessKeyID,
		SecretAccessKey: p.SecretAccessKey,
		Token:           p.Token,
		Expiration:      expiration,
	}, nil
}

func (s *HTTPSource) log() *slog.Logger {
	if s.logger == nil {
		return logging.GetLogger("credentials")
	}
	return s.logger
}

// isTransient retries transport failures and 5xx answers only.
func isTransient(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return true
	}
	return fe.retryable
}

var _ Source = (*HTTPSource)(nil)

// String implements fmt.Stringer without leaking the auth token.
func (s *HTTPSource) String() string {
	return fmt.Sprintf("http(%s)", s.URL)
}
