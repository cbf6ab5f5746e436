// Package eventstore implements the core's Event Store (spec §4.A): an
// append-only log of typed events keyed by a globally monotonic
// sequence number, with scoped queries and live subscriber fan-out.
// Persistence follows internal/jobs/cockroach.go's database/sql +
// lib/pq idiom (RETURNING-clause assignment, parameterized queries);
// the in-memory variant
// mirrors internal/observability/events.go's MemoryEventStore.
package eventstore

import (
	"encoding/json"
	"time"
)

// Event is an immutable, committed record in the log (spec §3.1).
type Event struct {
	Seq       int64           `json:"seq"`
	EventID   string          `json:"event_id"`
	ActorID   string          `json:"actor_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`

	RunID     string `json:"run_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// AppendEvent is the caller-supplied description of an event to
// append. Seq, EventID, and Timestamp are assigned by the store.
type AppendEvent struct {
	ActorID   string
	EventType string
	Payload   json.RawMessage

	RunID     string
	TaskID    string
	UserID    string
	SessionID string
	ThreadID  string
}

// AppendedEvent is returned on a successful Append, carrying the
// assigned identifiers the caller needs for correlation.
type AppendedEvent struct {
	Seq       int64
	EventID   string
	Timestamp time.Time
}

// Query narrows a history read. Every field is optional except Limit,
// which the store clamps to its configured maximum (spec §8.3
// boundary behavior: "limit > max is clamped").
type Query struct {
	EventTypePrefix string
	ActorID         string
	UserID          string
	RunID           string
	SinceSeq        int64
	Limit           int
}
