package harness

import "context"

// EventSink is the harness's narrow view of the Event Store: it only
// needs to append, never query or subscribe. This mirrors
// internal/agent/event_sink.go's EventSink interface, narrowed from
// "receives events" to "appends events" since the harness is always a
// producer.
type EventSink interface {
	Append(ctx context.Context, actorID, eventType string, payload any, runID, taskID string)
}

// NoopSink discards every event. Useful for adapters under test that
// don't need to assert on trace output.
type NoopSink struct{}

func (NoopSink) Append(context.Context, string, string, any, string, string) {}

var _ EventSink = NoopSink{}
