package eventstore

import (
	"context"
	"testing"
	"time"
)

func TestAppendAssignsStrictlyIncreasingSeq(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()
	ctx := context.Background()

	var lastSeq int64
	for i := 0; i < 5; i++ {
		appended, err := store.Append(ctx, AppendEvent{ActorID: "conductor-1", EventType: "conductor.run.dispatched"})
		if err != nil {
			t.Fatal(err)
		}
		if appended.Seq <= lastSeq {
			t.Fatalf("seq did not increase: %d <= %d", appended.Seq, lastSeq)
		}
		lastSeq = appended.Seq
	}

	latest, err := store.GetLatestSeq(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest < lastSeq {
		t.Fatalf("GetLatestSeq = %d, want >= %d", latest, lastSeq)
	}
}

func TestGetEventsForActorOrderedBySeq(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Append(ctx, AppendEvent{ActorID: "writer-1", EventType: "writer.run.patch"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Append(ctx, AppendEvent{ActorID: "other", EventType: "writer.run.patch"}); err != nil {
		t.Fatal(err)
	}

	events, err := store.GetEventsForActor(ctx, "writer-1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("events not strictly ordered by seq: %+v", events)
		}
	}
}

func TestQueryLimitIsClamped(t *testing.T) {
	store := NewMemoryStore(5, nil)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := store.Append(ctx, AppendEvent{ActorID: "a", EventType: "t"}); err != nil {
			t.Fatal(err)
		}
	}

	events, err := store.Query(ctx, Query{Limit: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 5 {
		t.Fatalf("expected limit clamped to 5, got %d", len(events))
	}
}

func TestNoTwoEventsShareASeq(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()
	ctx := context.Background()

	seen := make(map[int64]bool)
	for i := 0; i < 50; i++ {
		appended, err := store.Append(ctx, AppendEvent{ActorID: "a", EventType: "t"})
		if err != nil {
			t.Fatal(err)
		}
		if seen[appended.Seq] {
			t.Fatalf("seq %d reused", appended.Seq)
		}
		seen[appended.Seq] = true
	}
}

func TestSubscribeWildcardTopicFanOut(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()
	ctx := context.Background()

	received := make(chan Event, 4)
	unsubscribe := store.Subscribe("conductor.*", func(e Event) { received <- e })
	defer unsubscribe()

	if _, err := store.Append(ctx, AppendEvent{ActorID: "c", EventType: "conductor.run.dispatched", RunID: "r1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(ctx, AppendEvent{ActorID: "w", EventType: "writer.run.patch", RunID: "r1"}); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-received:
		if e.EventType != "conductor.run.dispatched" {
			t.Fatalf("unexpected event delivered: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for matching event")
	}

	select {
	case e := <-received:
		t.Fatalf("unexpected second delivery (fan-out isolation violated): %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanOutIsObservableOnlyAfterCommit(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()
	ctx := context.Background()

	var sawEventBeforeQueryable bool
	unsubscribe := store.Subscribe("*", func(e Event) {
		events, _ := store.GetEventsForActor(ctx, e.ActorID, 0, 10)
		found := false
		for _, q := range events {
			if q.Seq == e.Seq {
				found = true
			}
		}
		if !found {
			sawEventBeforeQueryable = true
		}
	})
	defer unsubscribe()

	if _, err := store.Append(ctx, AppendEvent{ActorID: "a", EventType: "t"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	if sawEventBeforeQueryable {
		t.Fatal("subscriber observed event before it was durably queryable")
	}
}
