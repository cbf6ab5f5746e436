package eventstore

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/choiros/core/internal/actorsys"
	"github.com/choiros/core/internal/corelog"
)

// broker fans out committed events to topic subscribers using
// actorsys.Groups, giving the Event Store the same best-effort,
// drop-on-full-mailbox delivery semantics as the rest of the actor
// runtime (spec §8.1 invariant 3).
type broker struct {
	ctx    context.Context
	cancel context.CancelFunc
	groups *actorsys.Groups[Event]
	log    *corelog.Logger
	nextID atomic.Int64
}

func newBroker(log *corelog.Logger) *broker {
	ctx, cancel := context.WithCancel(context.Background())
	b := &broker{ctx: ctx, cancel: cancel, log: log}
	b.groups = actorsys.NewGroups[Event](b.onDrop)
	return b
}

func (b *broker) onDrop(topic, actorName string) {
	if b.log != nil {
		b.log.Warn(b.ctx, "event store subscriber dropped: mailbox full", "topic", topic, "subscriber", actorName)
	}
}

// Subscribe joins topic and delivers every matching committed event to
// sink, serially, until unsubscribe is called or the subscriber is
// evicted for a full mailbox.
func (b *broker) Subscribe(topic string, sink func(Event)) (unsubscribe func()) {
	id := b.nextID.Add(1)
	name := "eventstore-sub-" + strconv.FormatInt(id, 10)
	ref, jh := actorsys.Spawn[Event](b.ctx, name, 256, func(_ context.Context, e Event) {
		sink(e)
	}, nil)
	b.groups.Join(topic, ref)

	return func() {
		b.groups.Leave(topic, ref)
		ref.Stop("unsubscribed")
		jh.Wait()
	}
}

func (b *broker) publish(e Event) {
	b.groups.Publish(e.EventType, e)
}

func (b *broker) Close() {
	b.cancel()
}
