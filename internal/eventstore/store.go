package eventstore

import "context"

// Store is the Event Store's typed operation set (spec §4.A). A single
// implementation instance serializes all writes, whether backed by a
// relational database or held in memory for tests.
type Store interface {
	// Append assigns a seq in one transaction, persists atomically, and
	// only then fans out to subscribers. Returns coreerrors.CodeWriteFailed
	// on persistent I/O error.
	Append(ctx context.Context, event AppendEvent) (AppendedEvent, error)

	// AppendAsync is the fire-and-forget variant for hot telemetry
	// paths. It still guarantees seq monotonicity on success and drops
	// only on storage failure, logging the error rather than returning
	// it to a caller that has already moved on.
	AppendAsync(ctx context.Context, event AppendEvent)

	// GetEventsForActor returns events for actor_id ordered by seq
	// ascending, since_seq exclusive, bounded by limit.
	GetEventsForActor(ctx context.Context, actorID string, sinceSeq int64, limit int) ([]Event, error)

	// GetEventsByType returns events whose type matches prefix (exact
	// or dotted-prefix), ordered by seq ascending.
	GetEventsByType(ctx context.Context, prefix string, sinceSeq int64, limit int) ([]Event, error)

	// GetEventsForRun returns events scoped to run_id, ordered by seq
	// ascending.
	GetEventsForRun(ctx context.Context, runID string, sinceSeq int64, limit int) ([]Event, error)

	// Query is the general form underlying the scoped helpers above.
	Query(ctx context.Context, q Query) ([]Event, error)

	// GetLatestSeq returns the highest assigned seq, or 0 if the log is
	// empty.
	GetLatestSeq(ctx context.Context) (int64, error)
}

// Publisher is implemented by Store backends that fan out committed
// events to process-group subscribers (spec §4.A "Algorithm": "Fan-out
// uses process-group membership"). Kept separate from Store so tests
// can exercise persistence without wiring a Groups registry.
type Publisher interface {
	Subscribe(topic string, sink func(Event)) (unsubscribe func())
}
