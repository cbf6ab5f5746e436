package actorsys

import (
	"context"
	"testing"
	"time"
)

func TestSpawnProcessesMessagesSerially(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []int
	done := make(chan struct{})
	ref, _ := Spawn[int](ctx, "counter", 8, func(_ context.Context, msg int) {
		got = append(got, msg)
		if len(got) == 3 {
			close(done)
		}
	}, nil)

	ref.Tell(1)
	ref.Tell(2)
	ref.Tell(3)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for messages")
	}

	for i, v := range got {
		if v != i+1 {
			t.Fatalf("messages out of order: %v", got)
		}
	}
}

func TestStopDrainsQueuedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processed := make(chan int, 8)
	ref, jh := Spawn[int](ctx, "drainer", 8, func(_ context.Context, msg int) {
		processed <- msg
	}, nil)

	ref.Tell(1)
	ref.Tell(2)
	ref.Stop("shutdown")

	if err := jh.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(processed)

	var got []int
	for v := range processed {
		got = append(got, v)
	}
	if len(got) != 2 {
		t.Fatalf("expected queued messages to drain before stop, got %v", got)
	}
}

func TestTellAfterStopReturnsFalse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ref, jh := Spawn[int](ctx, "stopped", 1, func(_ context.Context, _ int) {}, nil)
	ref.Stop("done")
	jh.Wait()

	if ref.Tell(1) {
		t.Fatal("Tell should fail after Stop")
	}
}

func TestPanicInHandlerReportedOnJoinHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ref, jh := Spawn[int](ctx, "panicker", 1, func(_ context.Context, msg int) {
		panic("boom")
	}, nil)

	ref.Tell(1)
	if err := jh.Wait(); err == nil {
		t.Fatal("expected panic to surface as an error from JoinHandle")
	}
}
