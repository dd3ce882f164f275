package nats

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/smazurov/kvsnode/internal/events"
)

// Subject names.
const (
	SubjectPrefix         = "kvsnode"
	DefaultCommandSubject = SubjectPrefix + ".commands"
	SubjectEventsPrefix   = SubjectPrefix + ".events"
	SubjectEventState     = SubjectEventsPrefix + ".state"
	SubjectEventRestart   = SubjectEventsPrefix + ".restart"
	CommandQueueGroup     = "kvsnode"
)

// SubjectFromTopic maps an MQTT-style topic such as "kvs/status" to a NATS
// subject. Wildcards are not valid in a publish topic and are rejected by
// returning an empty string.
func SubjectFromTopic(topic string) string {
	topic = strings.Trim(strings.TrimSpace(topic), "/")
	if topic == "" || strings.ContainsAny(topic, "#+*> \t") {
		return ""
	}
	return strings.ReplaceAll(topic, "/", ".")
}

// StateMessage mirrors a stream state change onto the bus.
type StateMessage struct {
	SessionID  string `json:"session_id"`
	StreamName string `json:"stream_name"`
	Timestamp  string `json:"timestamp"`
	Active     bool   `json:"active"`
	Reason     string `json:"reason,omitempty"` // started, stopped, end, replaced, ...
}

// NewStateMessage converts an event bus state change.
func NewStateMessage(e events.StreamStateChangedEvent) StateMessage {
	return StateMessage{
		SessionID:  e.SessionID,
		StreamName: e.StreamName,
		Timestamp:  e.Timestamp.Format(time.RFC3339),
		Active:     e.Active,
		Reason:     e.Reason,
	}
}

// Marshal serializes the message to JSON.
func (m StateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// RestartMessage mirrors an automatic restart onto the bus.
type RestartMessage struct {
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason"` // error, credentials_expiring
	Attempt   int    `json:"attempt"`
}

// NewRestartMessage converts an event bus restart.
func NewRestartMessage(e events.StreamRestartEvent) RestartMessage {
	return RestartMessage{
		SessionID: e.SessionID,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		Reason:    e.Reason,
		Attempt:   e.Attempt,
	}
}

// Marshal serializes the message to JSON.
func (m RestartMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalState deserializes a StateMessage from JSON.
func UnmarshalState(data []byte) (StateMessage, error) {
	var m StateMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalRestart deserializes a RestartMessage from JSON.
func UnmarshalRestart(data []byte) (RestartMessage, error) {
	var m RestartMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// decodeRequest parses a command body. Anything that is not a JSON object
// yields nil, which the controller reports as missing input.
func decodeRequest(data []byte) map[string]any {
	var req map[string]any
	if err := json.Unmarshal(data, &req); err != nil {
		return nil
	}
	return req
}
