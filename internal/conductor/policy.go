package conductor

import "context"

// Policy groups the two LLM-backed policy functions (spec §4.D.4).
// Both are implemented, at the wiring layer, as bounded Agent Harness
// invocations under the Conductor profile — the harness's uniform loop
// applied to the Conductor's own decisions, per spec §4.C
// ("the same code for every role").
type Policy interface {
	// BootstrapAgenda returns the run's initial ordered agenda (spec
	// §4.D.2 step 4). Capabilities absent from the registry are
	// discarded by the caller, not by the policy itself.
	BootstrapAgenda(ctx context.Context, run *Run) ([]AgendaSeed, error)

	// Decide is invoked only when no agenda item is Ready and no call
	// is active (spec §4.D.3 step 3, §4.D.4 "must forbid re-entering
	// Decide while Ready work exists").
	Decide(ctx context.Context, run *Run) (PolicyDecision, error)
}
