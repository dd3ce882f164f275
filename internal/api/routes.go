package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/kvsnode/internal/invoke"
	"github.com/smazurov/kvsnode/internal/logging"
	"github.com/smazurov/kvsnode/internal/metrics"
	"github.com/smazurov/kvsnode/internal/streams"
	"github.com/smazurov/kvsnode/internal/version"
)

const healthPath = "/api/health"

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        healthPath,
		Summary:     "Health",
		Description: "Liveness and build information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{
			Body: HealthData{Status: "ok", Version: version.Get()},
		}, nil
	})
}

func (s *Server) registerInvokeRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "invoke",
		Method:      http.MethodPost,
		Path:        "/api/invoke",
		Summary:     "Invoke",
		Description: "Run a start, stop or status task. The response is also published to the output topic.",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      []int{401, 502, 503, 504},
	}, func(ctx context.Context, input *InvokeRequest) (*InvokeResponse, error) {
		resp, err := s.invoker.InvokeResponse(ctx, input.Body)
		if err != nil {
			return nil, s.invokeError(err)
		}
		return &InvokeResponse{Body: resp}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Stream status",
		Description: "Shorthand for the status task, plus counters since process start",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      []int{401, 502, 503, 504},
	}, func(ctx context.Context, _ *struct{}) (*StatusResponse, error) {
		resp, err := s.invoker.InvokeResponse(ctx, map[string]any{"task": "status"})
		if err != nil {
			return nil, s.invokeError(err)
		}
		return &StatusResponse{
			Body: StatusData{Response: resp, Stream: metrics.Current()},
		}, nil
	})
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Description: "Log history from the in-memory ring buffer",
		Tags:        []string{"system"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *LogsRequest) (*LogsResponse, error) {
		entries := logging.GetBuffer().Query(logging.Filter{
			Module:    input.Module,
			SessionID: input.Session,
			MinLevel:  input.Level,
			Limit:     input.Limit,
		})
		if entries == nil {
			entries = []logging.LogEntry{}
		}
		return &LogsResponse{
			Body: LogsData{Entries: entries, Count: len(entries)},
		}, nil
	})
}

// invokeError maps an invocation failure to an HTTP status.
func (s *Server) invokeError(err error) error {
	s.logger.Error("Invocation failed", "error", err)

	var streamErr *streams.StreamError
	switch {
	case errors.Is(err, invoke.ErrTopicNotConfigured):
		return huma.Error503ServiceUnavailable("output topic is not configured", err)
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("controller did not answer in time", err)
	case errors.As(err, &streamErr) && streamErr.Code == streams.ErrCodeControllerShutdown:
		return huma.Error503ServiceUnavailable("controller is shutting down", err)
	case errors.As(err, &streamErr) && streamErr.Code == streams.ErrCodePublish:
		return huma.Error502BadGateway("failed to publish response", err)
	default:
		return huma.Error500InternalServerError("invocation failed", err)
	}
}
