package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/choiros/core/internal/corelog"
	"github.com/google/uuid"
)

// PostgresConfig configures the durable store's connection pool,
// mirroring internal/jobs/cockroach.go's CockroachConfig.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	QueryLimitMax   int
}

// DefaultPostgresConfig returns the documented defaults.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		QueryLimitMax:   1000,
	}
}

// PostgresStore implements Store against a Postgres/CockroachDB
// `events` table keyed by an autoincrementing `seq`, following the
// RETURNING-clause single-round-trip pattern used throughout
// internal/jobs/cockroach.go.
type PostgresStore struct {
	db     *sql.DB
	cfg    PostgresConfig
	broker *broker
}

// NewPostgresStoreFromDSN opens a connection pool and verifies
// connectivity before returning. The caller is responsible for
// applying the `events` table migration (see schema() below) ahead of
// time; this store does not run migrations itself.
func NewPostgresStoreFromDSN(dsn string, cfg PostgresConfig, log *corelog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg.QueryLimitMax <= 0 {
		cfg.QueryLimitMax = 1000
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db, cfg: cfg, broker: newBroker(log)}, nil
}

// schema is the `events` table DDL. Exposed as a constant for
// migration tooling to apply (spec §6.2: "schema is migration-managed"),
// not executed automatically.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq         BIGSERIAL PRIMARY KEY,
	event_id    TEXT NOT NULL UNIQUE,
	actor_id    TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	"timestamp" TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL,
	run_id      TEXT,
	task_id     TEXT,
	user_id     TEXT,
	session_id  TEXT,
	thread_id   TEXT
);
CREATE INDEX IF NOT EXISTS events_run_id_seq_idx ON events (run_id, seq);
CREATE INDEX IF NOT EXISTS events_actor_id_seq_idx ON events (actor_id, seq);
CREATE INDEX IF NOT EXISTS events_event_type_seq_idx ON events (event_type, seq);
`

// Schema returns the `events` table DDL for migration tooling.
func Schema() string { return schema }

// Close releases database resources and background fan-out goroutines.
func (s *PostgresStore) Close() error {
	s.broker.Close()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append implements Store. The INSERT ... RETURNING clause assigns and
// returns the seq in a single round trip, the same idiom
// internal/jobs/cockroach.go uses for job IDs.
func (s *PostgresStore) Append(ctx context.Context, event AppendEvent) (AppendedEvent, error) {
	eventID := uuid.NewString()
	ts := time.Now().UTC()

	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO events (event_id, actor_id, event_type, "timestamp", payload, run_id, task_id, user_id, session_id, thread_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING seq
	`,
		eventID, event.ActorID, event.EventType, ts, []byte(event.Payload),
		nullableString(event.RunID), nullableString(event.TaskID), nullableString(event.UserID),
		nullableString(event.SessionID), nullableString(event.ThreadID),
	).Scan(&seq)
	if err != nil {
		return AppendedEvent{}, writeFailed(err)
	}

	committed := Event{
		Seq: seq, EventID: eventID, ActorID: event.ActorID, EventType: event.EventType,
		Timestamp: ts, Payload: event.Payload,
		RunID: event.RunID, TaskID: event.TaskID, UserID: event.UserID,
		SessionID: event.SessionID, ThreadID: event.ThreadID,
	}
	s.broker.publish(committed)

	return AppendedEvent{Seq: seq, EventID: eventID, Timestamp: ts}, nil
}

// AppendAsync implements Store.
func (s *PostgresStore) AppendAsync(ctx context.Context, event AppendEvent) {
	go func() {
		if _, err := s.Append(ctx, event); err != nil && s.broker.log != nil {
			s.broker.log.Error(ctx, "event store async append failed", "event_type", event.EventType, "error", err)
		}
	}()
}

func (s *PostgresStore) GetEventsForActor(ctx context.Context, actorID string, sinceSeq int64, limit int) ([]Event, error) {
	return s.Query(ctx, Query{ActorID: actorID, SinceSeq: sinceSeq, Limit: limit})
}

func (s *PostgresStore) GetEventsByType(ctx context.Context, prefix string, sinceSeq int64, limit int) ([]Event, error) {
	return s.Query(ctx, Query{EventTypePrefix: prefix, SinceSeq: sinceSeq, Limit: limit})
}

func (s *PostgresStore) GetEventsForRun(ctx context.Context, runID string, sinceSeq int64, limit int) ([]Event, error) {
	return s.Query(ctx, Query{RunID: runID, SinceSeq: sinceSeq, Limit: limit})
}

// Query implements Store, building a parameterized WHERE clause the
// same way internal/jobs/cockroach.go's List does.
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Event, error) {
	limit := q.Limit
	if limit <= 0 || limit > s.cfg.QueryLimitMax {
		limit = s.cfg.QueryLimitMax
	}

	query := `SELECT seq, event_id, actor_id, event_type, "timestamp", payload, run_id, task_id, user_id, session_id, thread_id FROM events WHERE seq > $1`
	args := []any{q.SinceSeq}

	if q.ActorID != "" {
		args = append(args, q.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if q.UserID != "" {
		args = append(args, q.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if q.RunID != "" {
		args = append(args, q.RunID)
		query += fmt.Sprintf(" AND run_id = $%d", len(args))
	}
	if q.EventTypePrefix != "" && q.EventTypePrefix != "*" {
		args = append(args, q.EventTypePrefix+"%")
		query += fmt.Sprintf(" AND event_type LIKE $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY seq ASC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                                            Event
			runID, taskID, userID, sessionID, threadID   sql.NullString
			payload                                      []byte
		)
		if err := rows.Scan(&e.Seq, &e.EventID, &e.ActorID, &e.EventType, &e.Timestamp, &payload,
			&runID, &taskID, &userID, &sessionID, &threadID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = payload
		e.RunID, e.TaskID, e.UserID, e.SessionID, e.ThreadID = runID.String, taskID.String, userID.String, sessionID.String, threadID.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return out, nil
}

// GetLatestSeq implements Store.
func (s *PostgresStore) GetLatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get latest seq: %w", err)
	}
	return seq.Int64, nil
}

// Subscribe implements Publisher.
func (s *PostgresStore) Subscribe(topic string, sink func(Event)) func() {
	return s.broker.Subscribe(topic, sink)
}

func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
var _ Publisher = (*PostgresStore)(nil)
