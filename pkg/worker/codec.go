package worker

import (
	"encoding/json"
	"fmt"

	"hookfeed/pkg/storage"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Codec is an interface for decoding messages from a message broker into an Event.
type Codec interface {
	// Decode transforms a Watermill message into an Event.
	Decode(topic string, msg *message.Message) (*Event, error)
}

// DefaultCodec decodes a JSON event record body. The action falls back to the
// "action" metadata key when the body does not carry one.
type DefaultCodec struct{}

// Decode unmarshals a Watermill message into an Event.
func (DefaultCodec) Decode(topic string, msg *message.Message) (*Event, error) {
	var record storage.EventRecord
	if err := json.Unmarshal(msg.Payload, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	metadata := make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		metadata[key] = value
	}

	action := record.Action
	if action == "" {
		action = storage.Action(msg.Metadata.Get("action"))
	}
	if record.ID == "" {
		record.ID = msg.Metadata.Get("event_id")
	}

	return &Event{
		Topic:     topic,
		Action:    action,
		RequestID: msg.Metadata.Get("request_id"),
		Driver:    msg.Metadata.Get("driver"),
		Metadata:  metadata,
		Record:    record,
		Payload:   json.RawMessage(msg.Payload),
	}, nil
}
