// Package conductor owns runs: it decides which capability to dispatch
// next and never performs tool work itself (spec §4.D). It generalizes
// internal/multiagent/orchestrator.go's agent-selection-and-handoff
// design from a single conversational session to a deterministic
// dispatch loop over an append-only agenda, gated by LLM policy calls
// only when idle.
package conductor

import (
	"encoding/json"
	"time"

	"github.com/choiros/core/internal/harness"
)

// RunStatus is a Run's lifecycle state (spec §3.2, §4.D.1).
type RunStatus string

const (
	RunPending   RunStatus = "Pending"
	RunRunning   RunStatus = "Running"
	RunCompleted RunStatus = "Completed"
	RunBlocked   RunStatus = "Blocked"
	RunFailed    RunStatus = "Failed"
)

// ItemStatus is an AgendaItem's lifecycle state.
type ItemStatus string

const (
	ItemReady     ItemStatus = "Ready"
	ItemInFlight  ItemStatus = "InFlight"
	ItemCompleted ItemStatus = "Completed"
	ItemFailed    ItemStatus = "Failed"
	ItemBlocked   ItemStatus = "Blocked"
)

func (s ItemStatus) terminal() bool {
	return s == ItemCompleted || s == ItemFailed || s == ItemBlocked
}

// AgendaItem is one unit of capability work within a Run (spec §3.2).
type AgendaItem struct {
	ItemID     string
	Capability string
	Objective  string
	Status     ItemStatus
	CallID     string // set once dispatched
	Result     string // terminal summary, set on completion
}

// CapabilityCall tracks one in-flight dispatch (spec §3.2).
type CapabilityCall struct {
	CallID    string
	ItemID    string
	StartedAt time.Time
}

// Run represents one user objective (spec §3.2).
type Run struct {
	RunID        string
	TaskID       string
	Objective    string
	Status       RunStatus
	DocumentPath string
	Agenda       []AgendaItem
	ActiveCalls  map[string]CapabilityCall
}

func (r *Run) item(itemID string) *AgendaItem {
	for i := range r.Agenda {
		if r.Agenda[i].ItemID == itemID {
			return &r.Agenda[i]
		}
	}
	return nil
}

// readyItems returns agenda items with no active call, in agenda
// order, so dispatch is deterministic (spec §4.D.3 step 1).
func (r *Run) readyItems() []*AgendaItem {
	var out []*AgendaItem
	for i := range r.Agenda {
		if r.Agenda[i].Status == ItemReady {
			out = append(out, &r.Agenda[i])
		}
	}
	return out
}

func (r *Run) terminal() bool {
	return r.Status == RunCompleted || r.Status == RunBlocked || r.Status == RunFailed
}

// PolicyDecisionKind is the tagged union returned by the Decide policy
// function (spec §4.D.3 step 3).
type PolicyDecisionKind string

const (
	DecideSpawnWorker       PolicyDecisionKind = "SpawnWorker"
	DecideSpawnActorHarness PolicyDecisionKind = "SpawnActorHarness"
	DecideDelegate          PolicyDecisionKind = "Delegate"
	DecideComplete          PolicyDecisionKind = "Complete"
	DecideBlock             PolicyDecisionKind = "Block"
)

// PolicyDecision is the Decide policy function's output.
type PolicyDecision struct {
	Kind       PolicyDecisionKind
	Capability string
	Objective  string
	Target     string
	Reason     string
}

// AgendaSeed is one entry returned by the BootstrapAgenda policy
// function (spec §4.D.2 step 4).
type AgendaSeed struct {
	Capability string
	Objective  string
}

// ExecuteTask is the Conductor's entrypoint request (spec §4.D.2).
type ExecuteTask struct {
	Objective  string
	DesktopID  string
	OutputMode string
}

// CapabilityCallFinished carries a completed worker's result back to
// the Conductor (spec §3.2 "Terminal events carry the AgentResult").
type CapabilityCallFinished struct {
	CallID           string
	Outcome          string // "Completed" | "Blocked" | "Failed"
	Reason           string
	Summary          string
	ProposedDocument json.RawMessage // non-nil when the worker produced proposed content for Writer.ApplyPatch
	Citations        []harness.CitationRef // sources harvested or declared by the worker (spec §4.F)
}
