package conductor

import (
	"context"
	"testing"

	"github.com/choiros/core/internal/harness"
)

type fakeWriter struct {
	ensured       bool
	patches       int
	proposedCites []harness.CitationRef
}

func (w *fakeWriter) EnsureRunDocument(context.Context, string, string, string) error {
	w.ensured = true
	return nil
}
func (w *fakeWriter) ApplyPatchContent(context.Context, string, []byte, string, string) error {
	w.patches++
	return nil
}
func (w *fakeWriter) ReadDocument(context.Context, string) (string, error) { return "", nil }
func (w *fakeWriter) ProposeCitations(_ context.Context, _, _, _ string, refs []harness.CitationRef) error {
	w.proposedCites = append(w.proposedCites, refs...)
	return nil
}

var _ WriterClient = (*fakeWriter)(nil)

type fakePolicy struct {
	seeds    []AgendaSeed
	decision PolicyDecision
}

func (p *fakePolicy) BootstrapAgenda(context.Context, *Run) ([]AgendaSeed, error) { return p.seeds, nil }
func (p *fakePolicy) Decide(context.Context, *Run) (PolicyDecision, error)        { return p.decision, nil }

var _ Policy = (*fakePolicy)(nil)

func TestExecuteTaskDispatchesAndCompletesThroughPolicy(t *testing.T) {
	writer := &fakeWriter{}
	policy := &fakePolicy{
		seeds:    []AgendaSeed{{Capability: "researcher", Objective: "find sources"}},
		decision: PolicyDecision{Kind: DecideComplete},
	}
	capabilities := map[string]CapabilityWorker{
		"researcher": func(ctx context.Context, runID, taskID, documentPath, objective string) harness.AgentResult {
			return harness.AgentResult{Outcome: harness.OutcomeCompleted, Summary: "done researching"}
		},
	}

	c := New(capabilities, policy, writer, harness.NoopSink{}, nil)
	run, err := c.ExecuteTask(context.Background(), ExecuteTask{Objective: "write a report"})
	if err != nil {
		t.Fatal(err)
	}

	if !writer.ensured {
		t.Fatal("expected EnsureRunDocument to be called")
	}
	if run.Status != RunCompleted {
		t.Fatalf("run status = %v, want Completed", run.Status)
	}
	if run.Agenda[0].Status != ItemCompleted {
		t.Fatalf("item status = %v, want Completed", run.Agenda[0].Status)
	}
}

func TestExecuteTaskWithNoCapabilitiesBlocks(t *testing.T) {
	writer := &fakeWriter{}
	policy := &fakePolicy{seeds: nil}

	c := New(map[string]CapabilityWorker{}, policy, writer, harness.NoopSink{}, nil)
	run, err := c.ExecuteTask(context.Background(), ExecuteTask{Objective: "do nothing registerable"})
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != RunBlocked {
		t.Fatalf("run status = %v, want Blocked", run.Status)
	}
}

func TestExecuteTaskForwardsCitationsToWriter(t *testing.T) {
	writer := &fakeWriter{}
	policy := &fakePolicy{
		seeds:    []AgendaSeed{{Capability: "researcher", Objective: "find sources"}},
		decision: PolicyDecision{Kind: DecideComplete},
	}
	capabilities := map[string]CapabilityWorker{
		"researcher": func(ctx context.Context, runID, taskID, documentPath, objective string) harness.AgentResult {
			return harness.AgentResult{
				Outcome: harness.OutcomeCompleted, Summary: "done researching",
				Citations: []harness.CitationRef{{SourceURI: "https://example.com/a", Title: "A"}},
			}
		},
	}

	c := New(capabilities, policy, writer, harness.NoopSink{}, nil)
	if _, err := c.ExecuteTask(context.Background(), ExecuteTask{Objective: "write a report"}); err != nil {
		t.Fatal(err)
	}

	if len(writer.proposedCites) != 1 || writer.proposedCites[0].SourceURI != "https://example.com/a" {
		t.Fatalf("expected citation forwarded to writer, got %+v", writer.proposedCites)
	}
}

func TestUnregisteredCapabilitySeedIsDiscarded(t *testing.T) {
	writer := &fakeWriter{}
	policy := &fakePolicy{
		seeds: []AgendaSeed{{Capability: "unknown-cap", Objective: "x"}},
	}

	c := New(map[string]CapabilityWorker{}, policy, writer, harness.NoopSink{}, nil)
	run, err := c.ExecuteTask(context.Background(), ExecuteTask{Objective: "obj"})
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Agenda) != 0 {
		t.Fatalf("expected unregistered capability to be discarded, got agenda %+v", run.Agenda)
	}
	if run.Status != RunBlocked {
		t.Fatalf("run status = %v, want Blocked", run.Status)
	}
}
