package events

import (
	"encoding/json"
	"time"
)

// Envelope is the canonical, versioned event shape used across Arkiv.
// Outbox rows persist a serialized Envelope; the relay publishes it as-is.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	SourceService string          `json:"source_service"`
	TraceID       string          `json:"trace_id"`
	SchemaVersion int             `json:"schema_version"`
	PartitionKey  string          `json:"partition_key"`
	Data          json.RawMessage `json:"data"`
}
