package worker

import (
	"encoding/json"

	"hookfeed/pkg/storage"
)

// Event is a stored event notification received by the worker.
type Event struct {
	// Topic is the name of the topic the message was received on.
	Topic string `json:"topic"`
	// Action is the record action: push, pull_request or merge.
	Action storage.Action `json:"action"`
	// RequestID is the id of the webhook delivery that produced the record.
	RequestID string `json:"request_id,omitempty"`
	// Driver names the broker the message came from when several are combined.
	Driver string `json:"driver,omitempty"`
	// Metadata contains message-broker-specific metadata.
	Metadata map[string]string `json:"metadata"`
	// Record is the decoded event record.
	Record storage.EventRecord `json:"record"`
	// Payload is the raw message body.
	Payload json.RawMessage `json:"payload"`
}
