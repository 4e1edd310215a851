// Package message defines the envelope exchanged between the coordinator and
// the stage adapters. The payload is always a JSON object; anything else is
// rejected up front rather than coerced.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/mtzanidakis/erevna/internal/errs"
)

type Role string

const (
	RoleRequest  Role = "request"
	RoleResponse Role = "response"
)

type Envelope struct {
	Role     Role              `json:"role"`
	Payload  map[string]any    `json:"payload"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func NewRequest(payload map[string]any) *Envelope {
	return &Envelope{Role: RoleRequest, Payload: payload}
}

func NewResponse(payload map[string]any, meta map[string]string) *Envelope {
	return &Envelope{Role: RoleResponse, Payload: payload, Metadata: meta}
}

// ErrorResponse builds the shared error response shape used by every stage
// adapter: {status: "error", error: ..., metadata: {agent: ...}}.
func ErrorResponse(agent string, err error) *Envelope {
	return &Envelope{
		Role:     RoleResponse,
		Payload:  map[string]any{"status": "error", "error": err.Error()},
		Metadata: map[string]string{"agent": agent},
	}
}

// FromRequest builds a request envelope from any JSON-serializable value,
// normalizing it through the canonical JSON form.
func FromRequest(v any) (*Envelope, error) {
	payload, err := toPayload(v)
	if err != nil {
		return nil, err
	}
	return NewRequest(payload), nil
}

// FromResponse is FromRequest for the response role.
func FromResponse(v any, meta map[string]string) (*Envelope, error) {
	payload, err := toPayload(v)
	if err != nil {
		return nil, err
	}
	return NewResponse(payload, meta), nil
}

func toPayload(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Validationf("payload not serializable: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errs.Validationf("payload is not a mapping: %v", err)
	}
	return payload, nil
}

// Decode unmarshals the envelope payload into a typed contract struct via the
// canonical JSON form. Malformed payloads yield a ValidationError.
func (e *Envelope) Decode(v any) error {
	if e == nil || e.Payload == nil {
		return errs.Validationf("empty payload")
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return errs.Validationf("payload not serializable: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.Validationf("malformed payload: %v", err)
	}
	return nil
}

// UnmarshalJSON enforces the payload-is-a-mapping invariant when an envelope
// arrives over the wire.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role     Role              `json:"role"`
		Payload  json.RawMessage   `json:"payload"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	var payload map[string]any
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return errs.Validationf("envelope payload is not a mapping: %v", err)
		}
	}

	e.Role = raw.Role
	e.Payload = payload
	e.Metadata = raw.Metadata
	return nil
}

// Status returns the payload's status field, or "" when absent.
func (e *Envelope) Status() string {
	if e == nil || e.Payload == nil {
		return ""
	}
	s, _ := e.Payload["status"].(string)
	return s
}
