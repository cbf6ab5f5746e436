package actorsys

import (
	"context"
	"sync"
)

// Starter constructs and spawns one actor instance for the given
// logical name, returning its ref and join handle. A Supervisor calls
// this both for the initial spawn and for any restart, so rehydration
// (e.g. a Writer replaying its document's durable revision snapshot
// plus subsequent patch events) must be expressed inside Starter
// itself, not as a one-time setup step.
type Starter[T any] func(ctx context.Context, name string) (ActorRef[T], *JoinHandle)

// Supervisor restarts a crashed child under the same logical identity,
// per spec §4.B: "Supervisors restart failed child actors with the
// same logical identity (e.g. same run_id), rehydrating state from the
// event log." It is itself actor-free (no mailbox of its own) and
// intentionally simple: one goroutine per supervised child watches its
// JoinHandle and restarts on a non-nil error.
type Supervisor[T any] struct {
	mu       sync.Mutex
	children map[string]ActorRef[T]
	start    Starter[T]
}

// NewSupervisor constructs a Supervisor that uses start to (re)spawn
// children.
func NewSupervisor[T any](start Starter[T]) *Supervisor[T] {
	return &Supervisor[T]{
		children: make(map[string]ActorRef[T]),
		start:    start,
	}
}

// Ensure spawns name if it is not already running and returns its
// current ref. Safe to call concurrently; concurrent callers for the
// same name are serialized and converge on one ref (spec §8.1
// invariant 5: "no two distinct Writer actor refs ever exist
// concurrently for the same run_id").
func (s *Supervisor[T]) Ensure(ctx context.Context, name string) ActorRef[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.children[name]; ok {
		return ref
	}

	ref, jh := s.start(ctx, name)
	s.children[name] = ref
	go s.watch(ctx, name, jh)
	return ref
}

// Get returns the current ref for name, if running.
func (s *Supervisor[T]) Get(name string) (ActorRef[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.children[name]
	return ref, ok
}

// Remove stops tracking name without restarting it, used on
// intentional teardown (e.g. run completion) rather than crash
// recovery.
func (s *Supervisor[T]) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.children, name)
}

func (s *Supervisor[T]) watch(ctx context.Context, name string, jh *JoinHandle) {
	err := jh.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Intentional teardown removed the entry before the actor exited;
	// don't resurrect it.
	if _, stillTracked := s.children[name]; !stillTracked {
		return
	}
	if err == nil {
		// Clean stop: the caller asked for shutdown, not crash recovery.
		delete(s.children, name)
		return
	}
	if ctx.Err() != nil {
		// Process-wide shutdown, not a crash; do not restart.
		delete(s.children, name)
		return
	}

	ref, newJh := s.start(ctx, name)
	s.children[name] = ref
	go s.watch(ctx, name, newJh)
}
