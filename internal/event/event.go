// Package event defines the generic domain event flowing through the
// ingestion pipeline.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type enumerates the allowed event types.
type Type string

const (
	TypeCreate Type = "CREATE"
	TypeUpdate Type = "UPDATE"
	TypeDelete Type = "DELETE"
)

// Valid reports whether t is one of the enumerated event types.
func (t Type) Valid() bool {
	switch t {
	case TypeCreate, TypeUpdate, TypeDelete:
		return true
	}
	return false
}

// Event is a generic domain event. Payload is carried opaque; consumers
// downstream interpret its structure.
type Event struct {
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DeserializationError reports a structurally malformed event. It is
// terminal for the record.
type DeserializationError struct {
	msg string
}

func (e *DeserializationError) Error() string { return e.msg }

// Class implements the dead-letter error class contract.
func (e *DeserializationError) Class() string { return "DeserializationError" }

// Decode parses raw into an Event and confirms the required fields parse.
// This is a structural check only; schema validation happens separately and
// first.
func Decode(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, &DeserializationError{msg: fmt.Sprintf("failed to deserialize event: %v", err)}
	}
	if ev.ID == "" {
		return nil, &DeserializationError{msg: "event id is required"}
	}
	if !ev.Type.Valid() {
		return nil, &DeserializationError{msg: fmt.Sprintf("unknown event type %q", ev.Type)}
	}
	return &ev, nil
}
