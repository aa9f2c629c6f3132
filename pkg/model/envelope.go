package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical wrapper for every message the ledger puts on a bus.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Source        string          `json:"source"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Sequence      uint64          `json:"sequence,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(source, topic, eventType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Source:        source,
		Topic:         topic,
		EventType:     eventType,
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
		Payload:       data,
	}, nil
}
