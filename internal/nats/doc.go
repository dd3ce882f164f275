// Package nats is the message transport for kvsnode.
//
// # Architecture
//
//   - Server: optional embedded NATS broker for devices without one
//   - Client: shared connection with infinite reconnects
//   - Publisher: sends controller responses to the output topic and waits
//     for the server to acknowledge them
//   - CommandServer: answers start/stop/status requests (request/reply)
//   - Bridge: mirrors controller state changes from the event bus
//
// # Subject Hierarchy
//
//	kvsnode.commands          # Command requests (request/reply, queue group "kvsnode")
//	<output topic>            # Responses, e.g. OUTPUT_TOPIC=kvs/status → kvs.status
//	kvsnode.events.state      # Stream started/stopped
//	kvsnode.events.restart    # Automatic restarts
//
// MQTT-style output topics are mapped to subjects by replacing "/" with ".".
//
// # Debugging with nats CLI
//
// Start a stream:
//
//	nats req kvsnode.commands '{"task":"start","streamName":"front-door","awsRegion":"us-west-2"}'
//
// Query status:
//
//	nats req kvsnode.commands '{"task":"status"}'
//
// Follow responses and events:
//
//	nats sub "kvs.status"
//	nats sub "kvsnode.events.>" | jq .
//
// # Message Formats
//
// Response (output topic):
//
//	{
//	  "message": "Error from v4l2src0: Could not open device",
//	  "status": "ERROR",
//	  "code": 3
//	}
//
// StateMessage (kvsnode.events.state):
//
//	{
//	  "session_id": "6f1c...",
//	  "stream_name": "front-door",
//	  "timestamp": "2024-01-01T12:00:00Z",
//	  "active": true,
//	  "reason": "started"
//	}
//
// RestartMessage (kvsnode.events.restart):
//
//	{
//	  "session_id": "6f1c...",
//	  "timestamp": "2024-01-01T12:00:00Z",
//	  "reason": "credentials_expiring",
//	  "attempt": 1
//	}
package nats
