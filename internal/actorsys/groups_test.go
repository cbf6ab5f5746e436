package actorsys

import (
	"context"
	"testing"
)

func TestPublishDeliversToWildcardAndExactSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	groups := NewGroups[string](nil)

	var exactGot, wildcardGot, unrelatedGot []string
	exactRef, exactJh := Spawn[string](ctx, "exact", 4, func(_ context.Context, m string) { exactGot = append(exactGot, m) }, nil)
	wildcardRef, wildcardJh := Spawn[string](ctx, "wildcard", 4, func(_ context.Context, m string) { wildcardGot = append(wildcardGot, m) }, nil)
	unrelatedRef, unrelatedJh := Spawn[string](ctx, "unrelated", 4, func(_ context.Context, m string) { unrelatedGot = append(unrelatedGot, m) }, nil)

	groups.Join("conductor.run.dispatched", exactRef)
	groups.Join("conductor.run.*", wildcardRef)
	groups.Join("writer.run.patch", unrelatedRef)

	groups.Publish("conductor.run.dispatched", "evt-1")

	// Give the serial handlers a moment; Tell is synchronous enough for
	// buffered channels that this settles deterministically in practice,
	// but to keep the test hermetic we drain via Stop+Wait.
	exactRef.Stop("test done")
	wildcardRef.Stop("test done")
	unrelatedRef.Stop("test done")
	exactJh.Wait()
	wildcardJh.Wait()
	unrelatedJh.Wait()

	if len(exactGot) != 1 {
		t.Fatalf("exact subscriber got %v, want 1 event", exactGot)
	}
	if len(wildcardGot) != 1 {
		t.Fatalf("wildcard subscriber got %v, want 1 event", wildcardGot)
	}
	if len(unrelatedGot) != 0 {
		t.Fatalf("unrelated subscriber should not receive conductor.run.dispatched, got %v", unrelatedGot)
	}
}

func TestLeaveStopsFutureDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	groups := NewGroups[string](nil)
	ref, _ := Spawn[string](ctx, "member", 4, func(_ context.Context, _ string) {}, nil)

	groups.Join("topic.a", ref)
	groups.Leave("topic.a", ref)

	if members := groups.Members("topic.a"); len(members) != 0 {
		t.Fatalf("expected no members after Leave, got %d", len(members))
	}
}

func TestMatchingPatternsExpandsDottedPrefixes(t *testing.T) {
	got := matchingPatterns("worker.tool.call")
	want := map[string]bool{"worker.tool.call": true, "worker.*": true, "worker.tool.*": true, "*": true}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for _, p := range got {
		if !want[p] {
			t.Fatalf("unexpected pattern %q", p)
		}
	}
}

func TestPublishEvictsMemberWithFullMailbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dropped string
	groups := NewGroups[string](func(topic, name string) { dropped = name })

	block := make(chan struct{})
	ref, jh := Spawn[string](ctx, "slow", 1, func(_ context.Context, _ string) {
		<-block
	}, nil)
	defer func() { close(block); ref.Stop("test done"); jh.Wait() }()

	groups.Join("t", ref)

	// Fill the mailbox (capacity 1): first publish is consumed into the
	// blocked handler, second fills the buffer, third finds it full.
	groups.Publish("t", "1")
	groups.Publish("t", "2")
	groups.Publish("t", "3")

	if dropped != "slow" {
		t.Fatalf("expected slow member to be evicted, dropped=%q", dropped)
	}
	if members := groups.Members("t"); len(members) != 0 {
		t.Fatalf("expected member removed from group after eviction, got %d", len(members))
	}
}
