// Package tracing implements the core's JSONL trace plane and
// OpenTelemetry span wrapping around every llm.call.*/worker.tool.*
// pair (spec §9: "Trace coverage"), grounded on
// internal/agent/trace.go's TracePlugin/TraceReader/TraceReplayer.
package tracing

import (
	"encoding/json"
	"time"
)

// Header is written as the first line of a trace file for versioning
// and context, mirroring internal/agent/trace.go's TraceHeader.
type Header struct {
	Version     int       `json:"version"`
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	AppVersion  string    `json:"app_version,omitempty"`
	Environment string    `json:"environment,omitempty"`
}

const headerVersion = 1

// Line is one recorded trace event, own-sequenced since the trace
// plane is a side channel and does not share the Event Store's seq.
type Line struct {
	Seq       int64           `json:"seq"`
	ActorID   string          `json:"actor_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RunID     string          `json:"run_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
