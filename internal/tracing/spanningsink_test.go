package tracing

import (
	"context"
	"testing"
)

func TestSpanningSinkOpensAndClosesSpansWithoutExporter(t *testing.T) {
	tracer, shutdown := NewTracer(Config{ServiceName: "test"})
	defer shutdown(context.Background())

	sink := NewSpanningSink(nil, tracer)
	ctx := context.Background()

	sink.Append(ctx, "worker", "llm.call.started", map[string]string{"call_id": "c1", "role": "worker"}, "run-1", "task-1")
	sink.Append(ctx, "worker", "llm.call.completed", map[string]string{"call_id": "c1"}, "run-1", "task-1")

	if len(sink.spans) != 0 {
		t.Fatalf("expected span map to be empty after completed, got %d entries", len(sink.spans))
	}
}

func TestSpanningSinkHandlesToolCallPair(t *testing.T) {
	tracer, shutdown := NewTracer(Config{ServiceName: "test"})
	defer shutdown(context.Background())

	sink := NewSpanningSink(nil, tracer)
	ctx := context.Background()

	sink.Append(ctx, "worker", "worker.tool.call", map[string]string{"call_id": "c1", "tool_name": "bash"}, "run-1", "task-1")
	if len(sink.spans) != 1 {
		t.Fatalf("expected one open span, got %d", len(sink.spans))
	}
	sink.Append(ctx, "worker", "worker.tool.result", map[string]string{"call_id": "c1", "tool_name": "bash", "failure_kind": "disallowed_tool"}, "run-1", "task-1")
	if len(sink.spans) != 0 {
		t.Fatalf("expected span to close on result, got %d remaining", len(sink.spans))
	}
}
