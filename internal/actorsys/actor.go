// Package actorsys implements the typed mailbox, process-group, and
// supervision substrate described in spec §4.B. It generalizes the
// fan-out and panic-recovery idioms the teacher lineage hand-rolls in
// internal/agent/event_sink.go (BackpressureSink, MultiSink) and
// internal/agent/plugin.go (PluginRegistry) into a small reusable actor
// runtime: each actor owns a private mailbox for one message type and
// processes messages serially; concurrency across actors is unbounded
// and coordinated only by messages, never shared memory.
package actorsys

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ActorRef is an opaque, addressable handle to a running actor's
// mailbox. It is not a global name: two actors with the same logical
// identity (e.g. the same run_id after a supervisor restart) get
// distinct ActorRefs, which is why run-scoped actors are never looked
// up by name.
type ActorRef[T any] struct {
	mailbox chan T
	stopCh  chan string
	closed  *atomic.Bool
	name    string
}

// Tell sends a message without blocking the caller (a "cast" in the
// spec's terminology). It returns false if the mailbox is full or the
// actor has already stopped; callers that need delivery guarantees
// must use Ask/RPC-style request-reply instead.
func (r ActorRef[T]) Tell(msg T) bool {
	if r.closed.Load() {
		return false
	}
	select {
	case r.mailbox <- msg:
		return true
	default:
		return false
	}
}

// TellBlocking sends a message, blocking until mailbox space is
// available or ctx is cancelled. Used for lifecycle messages that must
// never be silently dropped (spec §4.B ordering guarantees do not
// extend to capacity, so callers needing guaranteed delivery opt into
// blocking explicitly).
func (r ActorRef[T]) TellBlocking(ctx context.Context, msg T) error {
	if r.closed.Load() {
		return fmt.Errorf("actor %s: mailbox closed", r.name)
	}
	select {
	case r.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop requests graceful shutdown with a reason. The actor's handler
// loop observes this after draining any messages already enqueued
// ahead of it, honoring the spec's requirement that an actor flush
// in-flight invariants before terminating.
func (r ActorRef[T]) Stop(reason string) {
	if r.closed.CompareAndSwap(false, true) {
		r.stopCh <- reason
		close(r.stopCh)
	}
}

// Name returns the actor's logical identity, used by supervisors to
// restart a crashed actor under the same identity.
func (r ActorRef[T]) Name() string { return r.name }

// JoinHandle lets the spawner wait for an actor's handler loop to
// finish (normal completion, Stop, or panic recovery).
type JoinHandle struct {
	done chan struct{}
	err  error
	mu   sync.Mutex
}

// Wait blocks until the actor's loop exits and returns any error it
// terminated with (nil on a clean stop).
func (h *JoinHandle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *JoinHandle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Handler processes one message. It returns nothing, so a handler
// cannot end the actor's loop through its result; handlers that need
// to terminate their own loop do so via an explicit side channel (e.g.
// cancelling the context passed to Spawn, or calling Stop on the ref).
type Handler[T any] func(ctx context.Context, msg T)

// Spawn starts a new actor with the given logical name and mailbox
// capacity, running handle serially for each received message until
// Stop is called or ctx is cancelled. onStop, if non-nil, runs after
// the last message is drained and before the actor reports done,
// giving it a chance to flush in-flight invariants (e.g. the Writer
// completing an in-progress revision append).
func Spawn[T any](ctx context.Context, name string, mailboxSize int, handle Handler[T], onStop func(reason string)) (ActorRef[T], *JoinHandle) {
	ref := ActorRef[T]{
		mailbox: make(chan T, mailboxSize),
		stopCh:  make(chan string, 1),
		closed:  &atomic.Bool{},
		name:    name,
	}
	jh := &JoinHandle{done: make(chan struct{})}

	go func() {
		var reason string
		defer func() {
			if r := recover(); r != nil {
				jh.finish(fmt.Errorf("actor %s panicked: %v", name, r))
				return
			}
			if onStop != nil {
				onStop(reason)
			}
			jh.finish(nil)
		}()

		for {
			select {
			case msg := <-ref.mailbox:
				handle(ctx, msg)
			case reason = <-ref.stopCh:
				// Drain any messages already queued ahead of the stop
				// signal before returning, honoring the flush contract.
				for {
					select {
					case msg := <-ref.mailbox:
						handle(ctx, msg)
						continue
					default:
					}
					return
				}
			case <-ctx.Done():
				reason = "context cancelled"
				return
			}
		}
	}()

	return ref, jh
}
