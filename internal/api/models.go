package api

import (
	"github.com/smazurov/kvsnode/internal/logging"
	"github.com/smazurov/kvsnode/internal/metrics"
	"github.com/smazurov/kvsnode/internal/streams"
	"github.com/smazurov/kvsnode/internal/version"
)

// HealthData reports liveness and build information.
type HealthData struct {
	Status  string       `json:"status" example:"ok" doc:"Service status"`
	Version version.Info `json:"version" doc:"Build and pipeline engine information"`
}

// HealthResponse is the health endpoint output.
type HealthResponse struct {
	Body HealthData
}

// InvokeRequest carries a raw invocation request. The body is the same JSON
// object accepted on the command subject.
type InvokeRequest struct {
	Body map[string]any `required:"false" doc:"Invocation request, e.g. {\"task\":\"start\",\"streamName\":\"cam\",\"awsRegion\":\"us-west-2\"}"`
}

// InvokeResponse is the controller response for an invocation.
type InvokeResponse struct {
	Body streams.Response
}

// StatusData combines the status task response with live stream figures.
type StatusData struct {
	Response streams.Response `json:"response" doc:"Response of the status task"`
	Stream   metrics.Snapshot `json:"stream" doc:"Counters since process start"`
}

// StatusResponse is the status endpoint output.
type StatusResponse struct {
	Body StatusData
}

// LogsRequest filters the log history.
type LogsRequest struct {
	Module  string `query:"module" example:"controller" doc:"Only entries from this module"`
	Session string `query:"session" doc:"Only entries logged for this pipeline session ID"`
	Level   string `query:"level" enum:"debug,info,warn,error" doc:"Minimum level"`
	Limit   int    `query:"limit" minimum:"0" maximum:"1000" default:"200" doc:"Newest entries to return"`
}

// LogsData holds recent log entries.
type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Entries in chronological order"`
	Count   int                `json:"count" example:"42" doc:"Number of entries returned"`
}

// LogsResponse is the logs endpoint output.
type LogsResponse struct {
	Body LogsData
}
