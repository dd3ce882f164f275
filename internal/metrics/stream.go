// Package metrics provides Prometheus metrics for the stream controller.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/kvsnode/internal/events"
)

var (
	streamActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kvsnode",
		Subsystem: "stream",
		Name:      "active",
		Help:      "1 while a stream session is running",
	})

	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kvsnode",
		Subsystem: "stream",
		Name:      "sessions_started_total",
		Help:      "Pipeline sessions started",
	})

	restarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kvsnode",
		Subsystem: "stream",
		Name:      "restarts_total",
		Help:      "Automatic restarts by reason",
	}, []string{"reason"})

	pipelineEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kvsnode",
		Subsystem: "pipeline",
		Name:      "events_total",
		Help:      "Pipeline events by kind",
	}, []string{"kind"})

	responses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kvsnode",
		Subsystem: "responses",
		Name:      "published_total",
		Help:      "Responses published to the output topic by status",
	}, []string{"status"})

	// Local cache for the status endpoint.
	snapshot   Snapshot
	snapshotMu sync.RWMutex
)

// Snapshot holds the current stream figures.
type Snapshot struct {
	Active          bool      `json:"active"`
	SessionID       string    `json:"session_id,omitempty"`
	StreamName      string    `json:"stream_name,omitempty"`
	Since           time.Time `json:"since,omitzero"`
	SessionsStarted int       `json:"sessions_started"`
	Restarts        int       `json:"restarts"`
	Errors          int       `json:"errors"`
	Warnings        int       `json:"warnings"`
}

// Subscribe feeds the metrics from the event bus and returns an
// unsubscribe function.
func Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(ObserveStateChange),
		bus.Subscribe(ObserveRestart),
		bus.Subscribe(ObservePipelineEvent),
		bus.Subscribe(ObserveResponse),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// ObserveStateChange records a session start or stop.
func ObserveStateChange(e events.StreamStateChangedEvent) {
	snapshotMu.Lock()
	defer snapshotMu.Unlock()

	if e.Active {
		streamActive.Set(1)
		sessionsStarted.Inc()
		snapshot.Active = true
		snapshot.SessionID = e.SessionID
		snapshot.StreamName = e.StreamName
		snapshot.Since = e.Timestamp
		snapshot.SessionsStarted++
		return
	}

	// A replaced session's stop event can arrive after its successor started.
	if e.SessionID != snapshot.SessionID {
		return
	}
	streamActive.Set(0)
	snapshot.Active = false
	snapshot.SessionID = ""
	snapshot.Since = time.Time{}
}

// ObserveRestart records an automatic restart.
func ObserveRestart(e events.StreamRestartEvent) {
	restarts.WithLabelValues(e.Reason).Inc()
	snapshotMu.Lock()
	snapshot.Restarts++
	snapshotMu.Unlock()
}

// ObservePipelineEvent records a pipeline notification.
func ObservePipelineEvent(e events.PipelineEvent) {
	pipelineEvents.WithLabelValues(string(e.Kind)).Inc()
	snapshotMu.Lock()
	defer snapshotMu.Unlock()
	switch e.Kind {
	case events.PipelineError:
		snapshot.Errors++
	case events.PipelineWarning:
		snapshot.Warnings++
	}
}

// ObserveResponse records a published response.
func ObserveResponse(e events.ResponsePublishedEvent) {
	responses.WithLabelValues(e.Status).Inc()
}

// Current returns a copy of the cached figures.
func Current() Snapshot {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	return snapshot
}
