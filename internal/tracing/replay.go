package tracing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/choiros/core/internal/harness"
)

// Replayer re-emits a recorded trace to a harness.EventSink and
// validates the monotonicity and trace-coverage invariants (spec
// §8.1 #1, #9) as executable checks rather than prose, grounded on
// internal/agent/trace.go's TraceReplayer/validateTrace.
type Replayer struct {
	reader *Reader
	sink   harness.EventSink
}

var _ harness.EventSink = (*JSONLSink)(nil)

// NewReplayer constructs a Replayer reading from reader and
// re-emitting to sink.
func NewReplayer(reader *Reader, sink harness.EventSink) *Replayer {
	return &Replayer{reader: reader, sink: sink}
}

// Stats summarizes one Replay call.
type Stats struct {
	Header     *Header
	LineCount  int
	FirstSeq   int64
	LastSeq    int64
	Violations []string
}

// Valid reports whether Replay found no invariant violations.
func (s *Stats) Valid() bool {
	return len(s.Violations) == 0
}

// Replay drains the trace, re-emitting every line to the sink, then
// validates it.
func (r *Replayer) Replay(ctx context.Context) (*Stats, error) {
	stats := &Stats{Header: r.reader.Header()}

	var lines []Line
	for {
		line, err := r.reader.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}
		lines = append(lines, *line)
	}

	for i, line := range lines {
		if r.sink != nil {
			r.sink.Append(ctx, line.ActorID, line.EventType, line.Payload, line.RunID, line.TaskID)
		}
		stats.LineCount++
		if i == 0 || line.Seq < stats.FirstSeq {
			stats.FirstSeq = line.Seq
		}
		if line.Seq > stats.LastSeq {
			stats.LastSeq = line.Seq
		}
	}

	stats.Violations = validate(lines)
	return stats, nil
}

// validate checks the monotonicity invariant (§8.1 #1: seq strictly
// increasing, no gaps in the trace's own sequencing) and the trace
// coverage invariant (§8.1 #9): every llm.call.started has a matching
// llm.call.completed/failed sharing its trace_id, and every
// worker.tool.call is closed by a later worker.tool.result from the
// same actor.
func validate(lines []Line) []string {
	var violations []string
	if len(lines) == 0 {
		return violations
	}

	var lastSeq int64
	openLLM := map[string]bool{}
	openTool := map[string]bool{}

	for i, l := range lines {
		if i > 0 && l.Seq <= lastSeq {
			violations = append(violations, fmt.Sprintf("seq not strictly increasing at line %d: %d <= %d", i, l.Seq, lastSeq))
		} else if i > 0 && l.Seq != lastSeq+1 {
			violations = append(violations, fmt.Sprintf("seq gap at line %d: %d follows %d", i, l.Seq, lastSeq))
		}
		lastSeq = l.Seq

		switch l.EventType {
		case "llm.call.started":
			openLLM[traceID(l)] = true
		case "llm.call.completed", "llm.call.failed":
			delete(openLLM, traceID(l))
		case "worker.tool.call":
			openTool[l.ActorID] = true
		case "worker.tool.result":
			delete(openTool, l.ActorID)
		}
	}

	for k := range openLLM {
		violations = append(violations, fmt.Sprintf("llm.call.started with no matching completed/failed for trace_id %q", k))
	}
	for k := range openTool {
		violations = append(violations, fmt.Sprintf("worker.tool.call with no matching worker.tool.result for actor %q", k))
	}

	return violations
}

// traceID extracts the trace_id field carried by every llm.call.*
// payload (spec §8.1 #9). A missing or unparseable trace_id falls back
// to the run|task pair so such a line still registers as a (likely
// unmatched) open span rather than being silently ignored.
func traceID(l Line) string {
	var payload struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(l.Payload, &payload); err == nil && payload.TraceID != "" {
		return payload.TraceID
	}
	return l.RunID + "|" + l.TaskID
}
