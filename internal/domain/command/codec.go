package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ContentType is the media type of encoded envelopes.
const ContentType = "application/json"

// DecodeError reports a structurally invalid envelope. It is never retriable.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode command: " + e.Reason + ": " + e.Err.Error()
	}
	return "decode command: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

type wireEnvelope struct {
	CommandID   string          `json:"command_id"`
	CommandType Type            `json:"command_type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   *time.Time      `json:"created_at"`
}

type variant struct {
	required []string
	decode   func(raw json.RawMessage, required []string) (Command, error)
}

var variants = map[Type]variant{
	TypeCreateUser:     {required: []string{"name", "email", "password"}, decode: decodePayload[CreateUser]},
	TypeDeactivateUser: {required: []string{"user_id"}, decode: decodePayload[DeactivateUser]},
}

// Encode serializes e into the wire format:
//
//	{"command_id": "...", "command_type": "...", "payload": {...}, "created_at": "RFC3339 UTC"}
func Encode(e Envelope) ([]byte, error) {
	if e.Payload == nil {
		return nil, errors.New("encode command: nil payload")
	}
	if e.Payload.CommandType() != e.Type {
		return nil, fmt.Errorf("encode command: payload is %s, envelope says %s", e.Payload.CommandType(), e.Type)
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	created := e.CreatedAt.UTC()
	return json.Marshal(wireEnvelope{
		CommandID:   e.ID,
		CommandType: e.Type,
		Payload:     payload,
		CreatedAt:   &created,
	})
}

// Decode parses an encoded envelope. Malformed JSON, unknown command types,
// missing envelope fields, missing payload fields and unknown payload fields
// all yield a *DecodeError.
func Decode(b []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return Envelope{}, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	switch {
	case w.CommandID == "":
		return Envelope{}, &DecodeError{Reason: "missing command_id"}
	case w.CommandType == "":
		return Envelope{}, &DecodeError{Reason: "missing command_type"}
	case w.CreatedAt == nil:
		return Envelope{}, &DecodeError{Reason: "missing created_at"}
	case len(w.Payload) == 0 || bytes.Equal(w.Payload, []byte("null")):
		return Envelope{}, &DecodeError{Reason: "missing payload"}
	}
	v, ok := variants[w.CommandType]
	if !ok {
		return Envelope{}, &DecodeError{Reason: fmt.Sprintf("unknown command_type %q", w.CommandType)}
	}
	cmd, err := v.decode(w.Payload, v.required)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        w.CommandID,
		Type:      w.CommandType,
		Payload:   cmd,
		CreatedAt: w.CreatedAt.UTC(),
	}, nil
}

func decodePayload[T Command](raw json.RawMessage, required []string) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Reason: "malformed payload", Err: err}
	}
	for _, k := range required {
		if _, ok := fields[k]; !ok {
			return nil, &DecodeError{Reason: "missing payload field " + k}
		}
	}
	var out T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, &DecodeError{Reason: "malformed payload", Err: err}
	}
	return out, nil
}
