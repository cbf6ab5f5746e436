package tracing

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"regexp"
	"sync"
	"time"
)

// Redactor strips sensitive fields from a payload before it reaches
// disk. Mirrors internal/agent/trace.go's DefaultRedactor, generalized
// from the ArgsJSON/ResultJSON fields of a fixed AgentEvent shape to an
// arbitrary tool-call/tool-result JSON payload.
type Redactor func(eventType string, payload json.RawMessage) json.RawMessage

var sensitiveKeyPattern = regexp.MustCompile(`"(api_key|authorization|token|password)"\s*:\s*"[^"]*"`)

// DefaultRedactor replaces sensitive key values with a fixed
// placeholder, leaving the surrounding payload shape intact.
func DefaultRedactor(_ string, payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return payload
	}
	return sensitiveKeyPattern.ReplaceAll(payload, []byte(`"$1":"[REDACTED]"`))
}

// JSONLSink writes every appended event as one JSONL line, implementing
// harness.EventSink so it can sit alongside (or in place of) a
// harness.StoreSink during Harness/Conductor/Writer runs. Grounded on
// internal/agent/trace.go's TracePlugin.
type JSONLSink struct {
	mu       sync.Mutex
	w        io.Writer
	file     *os.File
	header   *Header
	redactor Redactor
	started  bool
	seq      int64
}

// Option configures a JSONLSink using the functional-options pattern.
type Option func(*JSONLSink)

// WithRedactor overrides the default redactor.
func WithRedactor(r Redactor) Option {
	return func(s *JSONLSink) { s.redactor = r }
}

// WithAppVersion sets the trace header's app_version.
func WithAppVersion(v string) Option {
	return func(s *JSONLSink) { s.header.AppVersion = v }
}

// WithEnvironment sets the trace header's environment.
func WithEnvironment(env string) Option {
	return func(s *JSONLSink) { s.header.Environment = env }
}

// NewJSONLSink wraps w, writing a Header as the first line on first
// Append.
func NewJSONLSink(w io.Writer, runID string, opts ...Option) *JSONLSink {
	s := &JSONLSink{
		w:        w,
		header:   &Header{Version: headerVersion, RunID: runID, StartedAt: time.Now().UTC()},
		redactor: DefaultRedactor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewJSONLSinkFile creates (truncating) the file at path and wraps it.
// Callers must call Close.
func NewJSONLSinkFile(path, runID string, opts ...Option) (*JSONLSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := NewJSONLSink(f, runID, opts...)
	s.file = f
	return s, nil
}

// Append implements harness.EventSink.
func (s *JSONLSink) Append(ctx context.Context, actorID, eventType string, payload any, runID, taskID string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if s.redactor != nil {
		raw = s.redactor(eventType, raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		s.writeLocked(s.header)
	}

	s.seq++
	line := Line{Seq: s.seq, ActorID: actorID, EventType: eventType, Payload: raw, RunID: runID, TaskID: taskID, Timestamp: time.Now().UTC()}
	s.writeLocked(line)
}

func (s *JSONLSink) writeLocked(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := s.w.Write(data); err != nil {
		return
	}
	if _, err := s.w.Write([]byte("\n")); err != nil {
		return
	}
	if s.file != nil {
		_ = s.file.Sync()
	}
}

// Close closes the underlying file if NewJSONLSinkFile opened one.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
