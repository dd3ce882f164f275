// Package invoke adapts raw invocation requests to the stream controller.
package invoke

import (
	"context"
	"errors"
	"strings"

	"github.com/smazurov/kvsnode/internal/logging"
	"github.com/smazurov/kvsnode/internal/streams"
)

// ErrTopicNotConfigured is returned when no output topic is set.
var ErrTopicNotConfigured = errors.New("output topic is not configured")

// Handler executes a parsed command.
type Handler interface {
	Handle(ctx context.Context, cmd streams.Command) (streams.Response, error)
}

// Adapter turns an inbound request map into a controller command, publishes
// the response and returns it as JSON.
type Adapter struct {
	Topic      string
	Controller Handler
	Publisher  streams.Publisher
}

// Invoke handles one request. A blank topic fails before the controller is
// reached. Publish failures are returned.
func (a *Adapter) Invoke(ctx context.Context, request map[string]any) (string, error) {
	resp, err := a.InvokeResponse(ctx, request)
	if err != nil {
		return "", err
	}
	data, err := resp.JSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// InvokeResponse is Invoke without the final encoding.
func (a *Adapter) InvokeResponse(ctx context.Context, request map[string]any) (streams.Response, error) {
	if strings.TrimSpace(a.Topic) == "" {
		return streams.Response{}, ErrTopicNotConfigured
	}

	cmd := streams.ParseCommand(request)
	logging.GetLogger("invoke").Debug("Handling command", "task", cmd.Kind)

	resp, err := a.Controller.Handle(ctx, cmd)
	if err != nil {
		return streams.Response{}, err
	}
	if err := a.Publisher.Publish(ctx, resp); err != nil {
		return streams.Response{}, streams.NewStreamError(streams.ErrCodePublish, "failed to publish response", err)
	}
	return resp, nil
}
