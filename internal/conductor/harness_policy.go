package conductor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/choiros/core/internal/coreconfig"
	"github.com/choiros/core/internal/corelog"
	"github.com/choiros/core/internal/harness"
)

// HarnessPolicy implements Policy by running the two policy functions
// as bounded Agent Harness invocations under the Conductor profile
// (spec §4.D.4). bootstrapAdapter and decideAdapter each wrap an
// LLMProvider call whose synthesize step returns the tagged-union
// decision as JSON in AgentResult.Artifacts.
type HarnessPolicy struct {
	bootstrapAdapter harness.CapabilityAdapter
	decideAdapter    harness.CapabilityAdapter
	sink             harness.EventSink
	log              *corelog.Logger
	cfg              coreconfig.Config
}

// NewHarnessPolicy constructs a HarnessPolicy.
func NewHarnessPolicy(bootstrapAdapter, decideAdapter harness.CapabilityAdapter, sink harness.EventSink, log *corelog.Logger, cfg coreconfig.Config) *HarnessPolicy {
	return &HarnessPolicy{bootstrapAdapter: bootstrapAdapter, decideAdapter: decideAdapter, sink: sink, log: log, cfg: cfg}
}

func (p *HarnessPolicy) BootstrapAgenda(ctx context.Context, run *Run) ([]AgendaSeed, error) {
	h := harness.New(p.bootstrapAdapter, harness.ConfigFor(harness.ProfileConductor, p.cfg, nil), p.sink, p.log)
	result := h.Run(ctx, run.RunID, run.TaskID, run.DocumentPath, run.Objective)
	if result.Outcome != harness.OutcomeCompleted {
		return nil, fmt.Errorf("bootstrap agenda: %s (%s)", result.Outcome, result.Reason)
	}
	if len(result.Artifacts) == 0 {
		return nil, nil
	}
	var seeds []AgendaSeed
	if err := json.Unmarshal(result.Artifacts, &seeds); err != nil {
		return nil, fmt.Errorf("bootstrap agenda: decode artifacts: %w", err)
	}
	return seeds, nil
}

func (p *HarnessPolicy) Decide(ctx context.Context, run *Run) (PolicyDecision, error) {
	h := harness.New(p.decideAdapter, harness.ConfigFor(harness.ProfileConductor, p.cfg, nil), p.sink, p.log)
	result := h.Run(ctx, run.RunID, run.TaskID, run.DocumentPath, run.Objective)
	if result.Outcome != harness.OutcomeCompleted {
		return PolicyDecision{Kind: DecideBlock, Reason: result.Reason}, nil
	}
	var decision PolicyDecision
	if err := json.Unmarshal(result.Artifacts, &decision); err != nil {
		return PolicyDecision{}, fmt.Errorf("decide: decode artifacts: %w", err)
	}
	return decision, nil
}

var _ Policy = (*HarnessPolicy)(nil)
