package conductor

import (
	"context"
	"encoding/json"

	"github.com/choiros/core/internal/eventstore"
)

// Rehydrate reconstructs non-terminal run state by scanning
// conductor.run.* events (spec §4.D.5). In-flight calls whose owning
// worker is gone — i.e. no corresponding CapabilityCallFinished was
// ever recorded — are marked Failed{reason=CrashedDuringRun} and
// left for the next Decide policy call to re-dispatch, rather than
// being re-dispatched automatically here (policy owns that choice).
func Rehydrate(ctx context.Context, store eventstore.Store) (map[string]*Run, error) {
	events, err := store.GetEventsByType(ctx, "conductor.run.", 0, 0)
	if err != nil {
		return nil, err
	}

	runs := make(map[string]*Run)
	for _, e := range events {
		if e.RunID == "" {
			continue
		}
		run, ok := runs[e.RunID]
		if !ok {
			run = &Run{RunID: e.RunID, TaskID: e.TaskID, Status: RunRunning, ActiveCalls: make(map[string]CapabilityCall)}
			runs[e.RunID] = run
		}

		switch e.EventType {
		case "conductor.run.dispatched":
			var p struct {
				ItemID     string `json:"item_id"`
				CallID     string `json:"call_id"`
				Capability string `json:"capability"`
			}
			if err := json.Unmarshal(e.Payload, &p); err == nil {
				run.Agenda = append(run.Agenda, AgendaItem{ItemID: p.ItemID, Capability: p.Capability, Status: ItemInFlight, CallID: p.CallID})
				run.ActiveCalls[p.CallID] = CapabilityCall{CallID: p.CallID, ItemID: p.ItemID}
			}
		case "conductor.run.completed":
			run.Status = RunCompleted
		case "conductor.run.blocked":
			run.Status = RunBlocked
		}
	}

	for _, run := range runs {
		if run.terminal() {
			continue
		}
		for callID := range run.ActiveCalls {
			item := run.item(run.ActiveCalls[callID].ItemID)
			if item != nil {
				item.Status = ItemFailed
				item.Result = "CrashedDuringRun"
			}
		}
		run.ActiveCalls = make(map[string]CapabilityCall)
	}

	return runs, nil
}
