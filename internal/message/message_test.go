package message

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mtzanidakis/erevna/internal/errs"
)

func TestFromRequestRoundTrip(t *testing.T) {
	type contract struct {
		Topic string `json:"topic"`
		Max   int    `json:"max"`
	}

	env, err := FromRequest(contract{Topic: "solar", Max: 5})
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if env.Role != RoleRequest {
		t.Errorf("role = %q", env.Role)
	}

	var got contract
	if err := env.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Topic != "solar" || got.Max != 5 {
		t.Errorf("round trip = %+v", got)
	}
}

func TestFromRequestRejectsNonMapping(t *testing.T) {
	if _, err := FromRequest([]string{"not", "a", "mapping"}); !errs.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
	if _, err := FromRequest("scalar"); !errs.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	env := NewRequest(map[string]any{"topic": 42})
	var out struct {
		Topic string `json:"topic"`
	}
	if err := env.Decode(&out); !errs.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	var env Envelope
	if err := env.Decode(&struct{}{}); !errs.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestUnmarshalEnforcesMapping(t *testing.T) {
	var env Envelope
	err := json.Unmarshal([]byte(`{"role":"request","payload":[1,2,3]}`), &env)
	if !errs.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}

	if err := json.Unmarshal([]byte(`{"role":"request","payload":{"a":1}}`), &env); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}
	if env.Payload["a"] != float64(1) {
		t.Errorf("payload = %v", env.Payload)
	}
}

func TestErrorResponseShape(t *testing.T) {
	env := ErrorResponse("research", errors.New("boom"))
	if env.Status() != "error" {
		t.Errorf("status = %q", env.Status())
	}
	if env.Payload["error"] != "boom" || env.Metadata["agent"] != "research" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestStatusAbsent(t *testing.T) {
	env := NewRequest(map[string]any{"x": 1})
	if env.Status() != "" {
		t.Errorf("status = %q, want empty", env.Status())
	}
}
