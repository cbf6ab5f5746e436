package harness

import (
	"context"
	"encoding/json"

	"github.com/choiros/core/internal/corelog"
	"github.com/choiros/core/internal/eventstore"
)

// StoreSink adapts an eventstore.Store to EventSink, marshaling the
// payload and logging (rather than failing the harness loop) on a
// marshal or append error.
type StoreSink struct {
	store eventstore.Store
	log   *corelog.Logger
}

// NewStoreSink wraps store for use as a harness EventSink.
func NewStoreSink(store eventstore.Store, log *corelog.Logger) *StoreSink {
	return &StoreSink{store: store, log: log}
}

func (s *StoreSink) Append(ctx context.Context, actorID, eventType string, payload any, runID, taskID string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		if s.log != nil {
			s.log.Error(ctx, "harness trace payload marshal failed", "event_type", eventType, "error", err)
		}
		return
	}
	if _, err := s.store.Append(ctx, eventstore.AppendEvent{
		ActorID: actorID, EventType: eventType, Payload: raw, RunID: runID, TaskID: taskID,
	}); err != nil && s.log != nil {
		s.log.Error(ctx, "harness trace append failed", "event_type", eventType, "error", err)
	}
}

var _ EventSink = (*StoreSink)(nil)
