package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/choiros/core/internal/coreerrors"
	"github.com/choiros/core/internal/corelog"
	"github.com/choiros/core/internal/harness"
	"github.com/choiros/core/internal/metrics"
)

// CapabilityWorker runs one agenda item's work to a terminal
// harness.AgentResult. Implementations are expected to construct a
// harness.Harness with the capability's own CapabilityAdapter under
// harness.ProfileWorker and call Run.
type CapabilityWorker func(ctx context.Context, runID, taskID, documentPath, objective string) harness.AgentResult

// Conductor owns runs (spec §4.D). mu guards only the runs map,
// mirroring internal/multiagent/orchestrator.go's single-mutex design
// rather than introducing a second actor-runtime indirection on top of
// it. A run's agenda and status are not guarded by mu: they are
// mutated only by the goroutine executing ExecuteTask for that run,
// with capability workers reporting back over a channel.
type Conductor struct {
	mu           sync.Mutex
	runs         map[string]*Run
	capabilities map[string]CapabilityWorker
	policy       Policy
	writer       WriterClient
	sink         harness.EventSink
	log          *corelog.Logger
	metrics      *metrics.Core
}

// WithMetrics attaches a metrics.Core that dispatch/decide/active-run
// counters are recorded against. Optional; returns c for chaining.
func (c *Conductor) WithMetrics(m *metrics.Core) *Conductor {
	c.metrics = m
	return c
}

// New constructs a Conductor. capabilities maps capability name (e.g.
// "researcher", "terminal") to the worker that executes it.
func New(capabilities map[string]CapabilityWorker, policy Policy, writer WriterClient, sink harness.EventSink, log *corelog.Logger) *Conductor {
	return &Conductor{
		runs:         make(map[string]*Run),
		capabilities: capabilities,
		policy:       policy,
		writer:       writer,
		sink:         sink,
		log:          log,
	}
}

// ExecuteTask implements the Conductor's entrypoint (spec §4.D.2). It
// blocks until the run reaches a terminal state; callers that need
// live progress should subscribe to `conductor.run.*` on the Event
// Store instead of relying on this call's return alone.
func (c *Conductor) ExecuteTask(ctx context.Context, task ExecuteTask) (*Run, error) {
	run := &Run{
		RunID:        newULID(),
		TaskID:       newULID(),
		Objective:    task.Objective,
		Status:       RunPending,
		DocumentPath: fmt.Sprintf("conductor/runs/%s/draft.md", ""),
		ActiveCalls:  make(map[string]CapabilityCall),
	}
	run.DocumentPath = fmt.Sprintf("conductor/runs/%s/draft.md", run.RunID)

	c.mu.Lock()
	c.runs[run.RunID] = run
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RunStarted()
		defer func() {
			if run.terminal() {
				c.metrics.RunEnded()
			}
		}()
	}

	if err := c.writer.EnsureRunDocument(ctx, run.DocumentPath, run.Objective, task.DesktopID); err != nil {
		return run, fmt.Errorf("ensure run document: %w", err)
	}

	c.emit(ctx, run, "user_input", map[string]string{"record": run.Objective, "surface": "conductor.execute"})
	c.emit(ctx, run, "trace.prompt.received", map[string]string{"objective": run.Objective})

	seeds, err := c.policy.BootstrapAgenda(ctx, run)
	if err != nil {
		return run, fmt.Errorf("bootstrap agenda: %w", err)
	}

	for _, seed := range seeds {
		if _, ok := c.capabilities[seed.Capability]; !ok {
			continue // unregistered capability, discarded per spec §4.D.2 step 4
		}
		run.Agenda = append(run.Agenda, AgendaItem{ItemID: newULID(), Capability: seed.Capability, Objective: seed.Objective, Status: ItemReady})
	}

	if len(run.Agenda) == 0 {
		run.Status = RunBlocked
		c.emit(ctx, run, "conductor.run.blocked", map[string]string{"reason": "no-capabilities"})
		return run, nil
	}

	run.Status = RunRunning
	return run, c.mainLoop(ctx, run)
}

// mainLoop implements spec §4.D.3.
func (c *Conductor) mainLoop(ctx context.Context, run *Run) error {
	finished := make(chan CapabilityCallFinished, 8)

	for !run.terminal() {
		// Step 1: deterministic dispatch of every Ready item.
		dispatchedAny := false
		for _, item := range run.readyItems() {
			c.dispatch(ctx, run, item, finished)
			dispatchedAny = true
		}

		// Step 2: if anything is in flight, wait for the next completion.
		if len(run.ActiveCalls) > 0 {
			select {
			case <-ctx.Done():
				run.Status = RunFailed
				return ctx.Err()
			case result := <-finished:
				c.applyFinished(ctx, run, result)
			}
			continue
		}

		// Step 3: nothing Ready and nothing active: consult policy.
		if !dispatchedAny {
			if err := c.decide(ctx, run); err != nil {
				run.Status = RunFailed
				return err
			}
		}
	}
	return nil
}

func (c *Conductor) dispatch(ctx context.Context, run *Run, item *AgendaItem, finished chan<- CapabilityCallFinished) {
	worker, ok := c.capabilities[item.Capability]
	if !ok {
		item.Status = ItemFailed
		return
	}

	callID := newULID()
	item.Status = ItemInFlight
	item.CallID = callID
	run.ActiveCalls[callID] = CapabilityCall{CallID: callID, ItemID: item.ItemID}

	c.emit(ctx, run, "conductor.run.dispatched", map[string]string{"item_id": item.ItemID, "call_id": callID, "capability": item.Capability})
	if c.metrics != nil {
		c.metrics.RecordDispatch(item.Capability)
	}

	go func() {
		result := worker(ctx, run.RunID, run.TaskID, run.DocumentPath, item.Objective)
		finished <- CapabilityCallFinished{
			CallID:    callID,
			Outcome:   result.Outcome.String(),
			Reason:    result.Reason,
			Summary:   result.Summary,
			Citations: result.Citations,
			ProposedDocument: func() json.RawMessage {
				if result.Outcome == harness.OutcomeCompleted {
					return result.Artifacts
				}
				return nil
			}(),
		}
	}()
}

func (c *Conductor) applyFinished(ctx context.Context, run *Run, result CapabilityCallFinished) {
	call, ok := run.ActiveCalls[result.CallID]
	if !ok {
		return
	}
	delete(run.ActiveCalls, result.CallID)

	item := run.item(call.ItemID)
	if item == nil {
		return
	}

	switch result.Outcome {
	case "Completed":
		item.Status = ItemCompleted
	case "Blocked":
		item.Status = ItemBlocked
	default:
		item.Status = ItemFailed
	}
	item.Result = result.Summary

	if len(result.ProposedDocument) > 0 {
		if err := c.writer.ApplyPatchContent(ctx, run.DocumentPath, result.ProposedDocument, "Delegation", item.Capability); err != nil && c.log != nil {
			c.log.Error(ctx, "conductor: apply proposed document failed", "run_id", run.RunID, "item_id", item.ItemID, "error", err)
		}
	}

	if len(result.Citations) > 0 {
		if err := c.writer.ProposeCitations(ctx, run.DocumentPath, run.RunID, item.Capability, result.Citations); err != nil && c.log != nil {
			c.log.Error(ctx, "conductor: propose citations failed", "run_id", run.RunID, "item_id", item.ItemID, "error", err)
		}
	}
}

func (c *Conductor) decide(ctx context.Context, run *Run) error {
	decision, err := c.policy.Decide(ctx, run)
	if err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordDecide(string(decision.Kind))
	}

	switch decision.Kind {
	case DecideSpawnWorker:
		if _, ok := c.capabilities[decision.Capability]; ok {
			run.Agenda = append(run.Agenda, AgendaItem{ItemID: newULID(), Capability: decision.Capability, Objective: decision.Objective, Status: ItemReady})
		}
	case DecideSpawnActorHarness:
		run.Agenda = append(run.Agenda, AgendaItem{ItemID: newULID(), Capability: "subharness", Objective: decision.Objective, Status: ItemReady})
	case DecideDelegate:
		if err := c.writer.ApplyPatchContent(ctx, run.DocumentPath, nil, "Delegation", "conductor"); err != nil && c.log != nil {
			c.log.Error(ctx, "conductor: delegate to writer failed", "run_id", run.RunID, "error", err)
		}
	case DecideComplete:
		run.Status = RunCompleted
		c.emit(ctx, run, "conductor.run.completed", map[string]string{})
	case DecideBlock:
		run.Status = RunBlocked
		c.emit(ctx, run, "conductor.run.blocked", map[string]string{"reason": decision.Reason})
	default:
		return coreerrors.New(coreerrors.CodeUnknown, "unrecognized policy decision kind")
	}
	return nil
}

func (c *Conductor) emit(ctx context.Context, run *Run, eventType string, payload any) {
	c.sink.Append(ctx, "conductor", eventType, payload, run.RunID, run.TaskID)
}

// Get returns the current in-memory state of a run, or nil if unknown
// to this Conductor instance (it may have been handled by a different
// process before a restart; see Rehydrate).
func (c *Conductor) Get(runID string) *Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[runID]
}

// Restore merges runs reconstructed by Rehydrate into this Conductor's
// in-memory state, for callers that read the Event Store back at
// process startup before serving new traffic.
func (c *Conductor) Restore(runs map[string]*Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, run := range runs {
		c.runs[id] = run
	}
}
