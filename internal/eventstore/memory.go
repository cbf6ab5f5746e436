package eventstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/choiros/core/internal/coreerrors"
	"github.com/choiros/core/internal/corelog"
	"github.com/choiros/core/internal/metrics"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Store, grounded on
// internal/observability/events.go's MemoryEventStore but adding the
// monotonic seq assignment and fan-out the core's contract requires.
// Used for tests and for the core's single-user embedded deployment
// mode.
type MemoryStore struct {
	mu       sync.Mutex
	events   []Event
	nextSeq  int64
	queryMax int

	broker  *broker
	metrics *metrics.Core
}

// NewMemoryStore constructs an empty MemoryStore. queryMax caps a
// single page (spec §6.3 event_store.query_limit_max); 0 uses 1000.
func NewMemoryStore(queryMax int, log *corelog.Logger) *MemoryStore {
	if queryMax <= 0 {
		queryMax = 1000
	}
	return &MemoryStore{queryMax: queryMax, broker: newBroker(log)}
}

// WithMetrics attaches a metrics.Core that Append records against.
// Optional; a nil or unset Core means appends are not instrumented.
func (s *MemoryStore) WithMetrics(m *metrics.Core) *MemoryStore {
	s.metrics = m
	return s
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, event AppendEvent) (AppendedEvent, error) {
	startedAt := time.Now()
	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	committed := Event{
		Seq:       seq,
		EventID:   uuid.NewString(),
		ActorID:   event.ActorID,
		EventType: event.EventType,
		Timestamp: time.Now().UTC(),
		Payload:   event.Payload,
		RunID:     event.RunID,
		TaskID:    event.TaskID,
		UserID:    event.UserID,
		SessionID: event.SessionID,
		ThreadID:  event.ThreadID,
	}
	s.events = append(s.events, committed)
	s.mu.Unlock()

	// Fan-out happens only after the append above is visible to
	// subsequent queries, matching spec §4.A: "Fan-out must not be
	// observable before durable commit."
	s.broker.publish(committed)

	if s.metrics != nil {
		s.metrics.RecordAppend(committed.EventType, time.Since(startedAt).Seconds())
	}

	return AppendedEvent{Seq: committed.Seq, EventID: committed.EventID, Timestamp: committed.Timestamp}, nil
}

// AppendAsync implements Store.
func (s *MemoryStore) AppendAsync(ctx context.Context, event AppendEvent) {
	go func() {
		if _, err := s.Append(ctx, event); err != nil && s.broker.log != nil {
			// Storage failure on the fire-and-forget path: nothing to
			// return to, so the error is logged here.
			s.broker.log.Error(ctx, "event store async append failed", "event_type", event.EventType, "error", err)
		}
	}()
}

// GetEventsForActor implements Store.
func (s *MemoryStore) GetEventsForActor(ctx context.Context, actorID string, sinceSeq int64, limit int) ([]Event, error) {
	return s.Query(ctx, Query{ActorID: actorID, SinceSeq: sinceSeq, Limit: limit})
}

// GetEventsByType implements Store.
func (s *MemoryStore) GetEventsByType(ctx context.Context, prefix string, sinceSeq int64, limit int) ([]Event, error) {
	return s.Query(ctx, Query{EventTypePrefix: prefix, SinceSeq: sinceSeq, Limit: limit})
}

// GetEventsForRun implements Store.
func (s *MemoryStore) GetEventsForRun(ctx context.Context, runID string, sinceSeq int64, limit int) ([]Event, error) {
	return s.Query(ctx, Query{RunID: runID, SinceSeq: sinceSeq, Limit: limit})
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Event, error) {
	limit := q.Limit
	if limit <= 0 || limit > s.queryMax {
		limit = s.queryMax
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, 0, limit)
	for _, e := range s.events {
		if e.Seq <= q.SinceSeq {
			continue
		}
		if q.ActorID != "" && e.ActorID != q.ActorID {
			continue
		}
		if q.UserID != "" && e.UserID != q.UserID {
			continue
		}
		if q.RunID != "" && e.RunID != q.RunID {
			continue
		}
		if q.EventTypePrefix != "" && !matchesPrefix(e.EventType, q.EventTypePrefix) {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// GetLatestSeq implements Store.
func (s *MemoryStore) GetLatestSeq(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq, nil
}

// Subscribe implements Publisher.
func (s *MemoryStore) Subscribe(topic string, sink func(Event)) func() {
	return s.broker.Subscribe(topic, sink)
}

// Close releases the store's background subscription goroutines.
func (s *MemoryStore) Close() {
	s.broker.Close()
}

func matchesPrefix(eventType, prefix string) bool {
	if prefix == "*" || prefix == eventType {
		return true
	}
	return strings.HasPrefix(eventType, strings.TrimSuffix(prefix, "*"))
}

var _ Store = (*MemoryStore)(nil)
var _ Publisher = (*MemoryStore)(nil)

// writeFailed wraps a storage error as the typed WriteFailed error the
// spec requires Append to surface on persistent I/O failure.
func writeFailed(cause error) error {
	return &coreerrors.CoreError{Kind: coreerrors.Fatal, Code: coreerrors.CodeWriteFailed, Message: "append failed", Cause: cause}
}
