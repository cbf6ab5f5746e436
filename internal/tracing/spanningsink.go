package tracing

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/choiros/core/internal/harness"
	"go.opentelemetry.io/otel/trace"
)

// SpanningSink composes a JSONLSink with a Tracer so every
// llm.call.*/worker.tool.* pair produces both a JSONL line and an OTel
// span (spec §11: "wraps each llm.call.*/worker.tool.* pair in an OTel
// span alongside the JSONL trace plane").
type SpanningSink struct {
	jsonl  *JSONLSink
	tracer *Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewSpanningSink composes jsonl and tracer. Either may be nil to
// disable that half (e.g. a JSONL-only sink with tracer=nil).
func NewSpanningSink(jsonl *JSONLSink, tracer *Tracer) *SpanningSink {
	return &SpanningSink{jsonl: jsonl, tracer: tracer, spans: make(map[string]trace.Span)}
}

var _ harness.EventSink = (*SpanningSink)(nil)

type spanFields struct {
	CallID      string `json:"call_id"`
	ToolName    string `json:"tool_name"`
	Role        string `json:"role"`
	FailureKind string `json:"failure_kind"`
	Error       string `json:"error"`
}

// Append implements harness.EventSink.
func (s *SpanningSink) Append(ctx context.Context, actorID, eventType string, payload any, runID, taskID string) {
	if s.jsonl != nil {
		s.jsonl.Append(ctx, actorID, eventType, payload, runID, taskID)
	}
	if s.tracer == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	var f spanFields
	_ = json.Unmarshal(raw, &f)

	switch eventType {
	case "llm.call.started":
		_, span := s.tracer.StartLLMCall(ctx, f.Role, f.CallID)
		s.store(spanKey("llm", f.CallID), span)
	case "llm.call.completed":
		s.end(spanKey("llm", f.CallID), nil)
	case "llm.call.failed":
		s.end(spanKey("llm", f.CallID), errFromFields(f))
	case "worker.tool.call":
		_, span := s.tracer.StartToolCall(ctx, f.ToolName, f.CallID)
		s.store(spanKey("tool", f.CallID+"|"+f.ToolName), span)
	case "worker.tool.result":
		s.end(spanKey("tool", f.CallID+"|"+f.ToolName), errFromFields(f))
	}
}

func spanKey(kind, id string) string {
	return kind + ":" + id
}

func errFromFields(f spanFields) error {
	if f.FailureKind == "" && f.Error == "" {
		return nil
	}
	if f.Error != "" {
		return errString(f.Error)
	}
	return errString(f.FailureKind)
}

type errString string

func (e errString) Error() string { return string(e) }

func (s *SpanningSink) store(key string, span trace.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans[key] = span
}

func (s *SpanningSink) end(key string, err error) {
	s.mu.Lock()
	span, ok := s.spans[key]
	if ok {
		delete(s.spans, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err != nil {
		s.tracer.RecordError(span, err)
	}
	span.End()
}
