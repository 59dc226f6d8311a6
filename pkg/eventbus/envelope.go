package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// CurrentSchema is written into every envelope this node produces.
const CurrentSchema = "v1"

// Envelope is the wire form of an actor event. EventID is a ULID, so ids
// from one node sort in publish order.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	NodeID        string          `json:"node_id"`
	Actor         string          `json:"actor"`
	Sequence      int64           `json:"sequence"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope stamps payload with a fresh id and the current time.
func NewEnvelope(nodeID, actor, eventType string, seq int64, payload any) (Envelope, error) {
	switch {
	case nodeID == "":
		return Envelope{}, errors.New("eventbus: node id is required")
	case actor == "":
		return Envelope{}, errors.New("eventbus: actor is required")
	case eventType == "":
		return Envelope{}, errors.New("eventbus: event type is required")
	case seq <= 0:
		return Envelope{}, fmt.Errorf("eventbus: sequence %d is not positive", seq)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: marshal %s payload: %w", eventType, err)
	}
	now := time.Now().UTC()
	return Envelope{
		EventID:       ulid.Make().String(),
		EventType:     eventType,
		Timestamp:     now,
		SchemaVersion: CurrentSchema,
		NodeID:        nodeID,
		Actor:         actor,
		Sequence:      seq,
		Payload:       raw,
	}, nil
}

// DecodePayload unmarshals the event payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("eventbus: event %s has no payload", e.EventID)
	}
	return json.Unmarshal(e.Payload, v)
}

// DecodeEnvelope parses a bus message body.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("eventbus: decode envelope: %w", err)
	}
	if env.EventID == "" || env.EventType == "" {
		return Envelope{}, errors.New("eventbus: envelope is missing its id or type")
	}
	return env, nil
}
