// Package eventbus implements the optional Event Bus of spec §4.H: a
// durable, schema-validated pub/sub mirror of every signal/position/
// command event in the engine, for downstream consumers outside the
// hot path (dashboards, audit tooling, replay). Grounded on teacher's
// store/redis/writer.go (Redis Streams publish) and
// store/sqlite/writer.go (AppendEvent/PruneEvents durable collector),
// with schema validation new per spec §4.H, reimplemented from
// original_source/event_bus/event_schema.py's base_event field rules as
// a small Go struct rather than porting its generic FieldRule validator.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"eliteguard/internal/errs"
)

// maxEventTypeLen/maxSourceLen/maxCorrelationIDLen mirror
// event_schema.py's base_event FieldRule max_length constraints.
const (
	maxEventTypeLen     = 100
	maxSourceLen        = 100
	maxCorrelationIDLen = 200
)

// Envelope is the validated event wrapper every publish goes through,
// mirroring event_schema.py's base_event schema: event_type, timestamp,
// source, data, and an optional correlation_id for request tracing.
type Envelope struct {
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	Data          json.RawMessage `json:"data"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEnvelope builds an Envelope, JSON-encoding data and stamping the
// current time.
func NewEnvelope(eventType, source string, data any, correlationID string) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: marshal data: %w", err)
	}
	return Envelope{
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          raw,
		CorrelationID: correlationID,
	}, nil
}

// Validate checks the envelope against base_event's required-field and
// length rules. A failure is an ErrContractViolation: the collector
// logs and routes the raw payload to the SQLite dead-letter path rather
// than the Redis stream.
func (e Envelope) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("%w: event_type is required", errs.ErrContractViolation)
	}
	if len(e.EventType) > maxEventTypeLen {
		return fmt.Errorf("%w: event_type exceeds %d chars", errs.ErrContractViolation, maxEventTypeLen)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", errs.ErrContractViolation)
	}
	if e.Source == "" {
		return fmt.Errorf("%w: source is required", errs.ErrContractViolation)
	}
	if len(e.Source) > maxSourceLen {
		return fmt.Errorf("%w: source exceeds %d chars", errs.ErrContractViolation, maxSourceLen)
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: data is required", errs.ErrContractViolation)
	}
	if len(e.CorrelationID) > maxCorrelationIDLen {
		return fmt.Errorf("%w: correlation_id exceeds %d chars", errs.ErrContractViolation, maxCorrelationIDLen)
	}
	return nil
}
