package events

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// Payload is an inbound webhook body decoded without a schema.
type Payload map[string]interface{}

// DecodePayload parses a JSON body. Valid JSON that is not an object yields an empty
// payload, so extraction fails per field instead of the whole request.
func DecodePayload(raw []byte) (Payload, error) {
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	object, ok := out.(map[string]interface{})
	if !ok {
		return Payload{}, nil
	}
	return Payload(object), nil
}

// FieldError reports a required payload field that is missing or has the wrong type.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("payload field %s: %s", e.Field, e.Reason)
}

func (p Payload) lookup(field string) (interface{}, error) {
	value, err := jsonpath.Get("$."+field, map[string]interface{}(p))
	if err != nil {
		return nil, &FieldError{Field: field, Reason: "missing"}
	}
	if value == nil {
		return nil, &FieldError{Field: field, Reason: "null"}
	}
	return value, nil
}

// String returns the string at the dotted field path.
func (p Payload) String(field string) (string, error) {
	value, err := p.lookup(field)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", &FieldError{Field: field, Reason: fmt.Sprintf("expected string, got %T", value)}
	}
	return s, nil
}

// Bool returns the boolean at the dotted field path.
func (p Payload) Bool(field string) (bool, error) {
	value, err := p.lookup(field)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, &FieldError{Field: field, Reason: fmt.Sprintf("expected bool, got %T", value)}
	}
	return b, nil
}

// fieldReader collects the first extraction error so handlers read every field
// they need and check once.
type fieldReader struct {
	payload Payload
	err     error
}

func (r *fieldReader) str(field string) string {
	if r.err != nil {
		return ""
	}
	value, err := r.payload.String(field)
	r.err = err
	return value
}

func (r *fieldReader) boolean(field string) bool {
	if r.err != nil {
		return false
	}
	value, err := r.payload.Bool(field)
	r.err = err
	return value
}
