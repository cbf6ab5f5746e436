package tracing

import (
	"bytes"
	"context"
	"testing"
)

type captureSink struct {
	appended []string
}

func (c *captureSink) Append(ctx context.Context, actorID, eventType string, payload any, runID, taskID string) {
	c.appended = append(c.appended, eventType)
}

func TestJSONLSinkWritesHeaderThenLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf, "run-1")

	sink.Append(context.Background(), "worker", "llm.call.started", map[string]string{"role": "worker"}, "run-1", "task-1")
	sink.Append(context.Background(), "worker", "llm.call.completed", map[string]string{"role": "worker"}, "run-1", "task-1")

	reader, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if reader.Header().RunID != "run-1" {
		t.Fatalf("expected header run_id run-1, got %q", reader.Header().RunID)
	}

	lines, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Seq != 1 || lines[1].Seq != 2 {
		t.Fatalf("expected strictly increasing seq, got %d then %d", lines[0].Seq, lines[1].Seq)
	}
}

func TestDefaultRedactorStripsSensitiveKeys(t *testing.T) {
	raw := []byte(`{"tool_name":"bash","args":{"api_key":"sk-secret","command":"ls"}}`)
	redacted := DefaultRedactor("worker.tool.call", raw)
	if bytes.Contains(redacted, []byte("sk-secret")) {
		t.Fatalf("expected api_key value to be redacted, got %s", redacted)
	}
	if !bytes.Contains(redacted, []byte(`"command":"ls"`)) {
		t.Fatalf("expected unrelated fields to survive redaction, got %s", redacted)
	}
}

func TestReplayerRoundTripsAndReportsNoViolationsForWellFormedTrace(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf, "run-2")
	ctx := context.Background()

	sink.Append(ctx, "worker", "llm.call.started", map[string]string{"call_id": "c1", "role": "worker"}, "run-2", "task-1")
	sink.Append(ctx, "worker", "llm.call.completed", map[string]string{"call_id": "c1"}, "run-2", "task-1")
	sink.Append(ctx, "worker", "worker.tool.call", map[string]string{"call_id": "c1", "tool_name": "bash"}, "run-2", "task-1")
	sink.Append(ctx, "worker", "worker.tool.result", map[string]string{"call_id": "c1", "tool_name": "bash"}, "run-2", "task-1")

	reader, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	capture := &captureSink{}
	replayer := NewReplayer(reader, capture)
	stats, err := replayer.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !stats.Valid() {
		t.Fatalf("expected no violations, got %v", stats.Violations)
	}
	if stats.LineCount != 4 {
		t.Fatalf("expected 4 replayed lines, got %d", stats.LineCount)
	}
	if len(capture.appended) != 4 {
		t.Fatalf("expected sink to receive 4 events, got %d", len(capture.appended))
	}
}

func TestReplayerMatchesLLMCallTrioByTraceIDNotRunTask(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf, "run-4")
	ctx := context.Background()

	// Two distinct trace_ids sharing the same run_id/task_id: a
	// run_id|task_id-keyed matcher would conflate them into one open
	// span and miss that the second trace_id's started has no
	// completed. A trace_id-keyed matcher must flag exactly that one.
	sink.Append(ctx, "worker", "llm.call.started", map[string]string{"trace_id": "t1", "call_id": "c1"}, "run-4", "task-1")
	sink.Append(ctx, "worker", "llm.call.completed", map[string]string{"trace_id": "t1", "call_id": "c1"}, "run-4", "task-1")
	sink.Append(ctx, "worker", "llm.call.started", map[string]string{"trace_id": "t2", "call_id": "c2"}, "run-4", "task-1")

	reader, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	stats, err := NewReplayer(reader, nil).Replay(ctx)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if stats.Valid() {
		t.Fatal("expected a violation for trace_id t2's unmatched started")
	}
	if len(stats.Violations) != 1 {
		t.Fatalf("expected exactly 1 violation (t2 only), got %v", stats.Violations)
	}
}

func TestReplayerFlagsUnmatchedLLMCallStarted(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf, "run-3")
	ctx := context.Background()
	sink.Append(ctx, "worker", "llm.call.started", map[string]string{"call_id": "c1", "role": "worker"}, "run-3", "task-1")

	reader, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	stats, err := NewReplayer(reader, nil).Replay(ctx)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if stats.Valid() {
		t.Fatal("expected a violation for an unmatched llm.call.started")
	}
}
