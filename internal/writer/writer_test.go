package writer

import (
	"context"
	"strings"
	"testing"

	"github.com/choiros/core/internal/coreerrors"
	"github.com/choiros/core/internal/eventstore"
	"github.com/choiros/core/internal/harness"
)

func newTestWriter() (*Writer, eventstore.Store) {
	store := eventstore.NewMemoryStore(0, nil)
	sink := harness.NewStoreSink(store, nil)
	return NewWriter(sink, nil, nil), store
}

func TestEnsureRunDocumentIsIdempotent(t *testing.T) {
	w, _ := newTestWriter()
	defer w.Close()
	ctx := context.Background()

	if err := w.EnsureRunDocument(ctx, "runs/1/draft.md", "write a report", "desktop-1"); err != nil {
		t.Fatal(err)
	}
	first, _ := w.ReadDocument(ctx, "runs/1/draft.md")

	if err := w.EnsureRunDocument(ctx, "runs/1/draft.md", "a different objective", "desktop-1"); err != nil {
		t.Fatal(err)
	}
	second, _ := w.ReadDocument(ctx, "runs/1/draft.md")

	if first != second {
		t.Fatalf("EnsureRunDocument was not idempotent: %q != %q", first, second)
	}
	if !strings.Contains(first, "write a report") {
		t.Fatalf("expected objective in document, got %q", first)
	}
}

func TestApplyPatchIncrementsRevision(t *testing.T) {
	w, _ := newTestWriter()
	defer w.Close()
	ctx := context.Background()

	if err := w.EnsureRunDocument(ctx, "runs/2/draft.md", "obj", ""); err != nil {
		t.Fatal(err)
	}
	rev1, err := w.ApplyPatch(ctx, "runs/2/draft.md", []PatchOp{{Op: OpInsert, Pos: 0, Text: "hello "}}, SourceWriter, "writer", 0)
	if err != nil {
		t.Fatal(err)
	}
	rev2, err := w.ApplyPatch(ctx, "runs/2/draft.md", []PatchOp{{Op: OpInsert, Pos: 0, Text: "again "}}, SourceWriter, "writer", 0)
	if err != nil {
		t.Fatal(err)
	}
	if rev2 <= rev1 {
		t.Fatalf("revision did not strictly increase: %d <= %d", rev2, rev1)
	}
}

func TestApplyPatchRejectsStaleBaseRevision(t *testing.T) {
	w, _ := newTestWriter()
	defer w.Close()
	ctx := context.Background()

	if err := w.EnsureRunDocument(ctx, "runs/3/draft.md", "obj", ""); err != nil {
		t.Fatal(err)
	}
	_, err := w.ApplyPatch(ctx, "runs/3/draft.md", []PatchOp{{Op: OpInsert, Pos: 0, Text: "x"}}, SourceWriter, "writer", 99)
	if !coreerrors.Is(err, coreerrors.CodeConflictStale) {
		t.Fatalf("expected ConflictStale, got %v", err)
	}
}

func TestEnqueueInboundDeduplicates(t *testing.T) {
	w, _ := newTestWriter()
	defer w.Close()
	ctx := context.Background()

	first := w.EnqueueInbound(ctx, "runs/4/draft.md", "msg-1", "conductor", nil)
	second := w.EnqueueInbound(ctx, "runs/4/draft.md", "msg-1", "conductor", nil)

	if first {
		t.Fatal("first enqueue should not be reported as duplicate")
	}
	if !second {
		t.Fatal("second enqueue of the same message_id should be reported as duplicate")
	}
}

func TestListVersionsReturnsAllRevisions(t *testing.T) {
	w, _ := newTestWriter()
	defer w.Close()
	ctx := context.Background()

	if err := w.EnsureRunDocument(ctx, "runs/5/draft.md", "obj", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := w.ApplyPatch(ctx, "runs/5/draft.md", []PatchOp{{Op: OpInsert, Pos: 0, Text: "x"}}, SourceWriter, "writer", 0); err != nil {
		t.Fatal(err)
	}

	versions := w.ListVersions(ctx, "runs/5/draft.md")
	if len(versions) != 2 {
		t.Fatalf("expected 2 revisions (initial + patch), got %d", len(versions))
	}
}

func TestApplyPatchesInsertDeleteReplace(t *testing.T) {
	content := "hello world"

	after, counts, err := ApplyPatches(content, []PatchOp{{Op: OpReplace, Pos: 6, Len: 5, Text: "there"}})
	if err != nil {
		t.Fatal(err)
	}
	if after != "hello there" {
		t.Fatalf("after = %q", after)
	}
	if counts.Replace != 1 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestApplyPatchesRejectsOutOfBounds(t *testing.T) {
	_, _, err := ApplyPatches("short", []PatchOp{{Op: OpDelete, Pos: 0, Len: 100}})
	if err == nil {
		t.Fatal("expected an error for an out-of-bounds delete")
	}
}

func TestListSectionsCountsTables(t *testing.T) {
	w, _ := newTestWriter()
	defer w.Close()
	ctx := context.Background()

	if err := w.EnsureRunDocument(ctx, "runs/6/draft.md", "obj", ""); err != nil {
		t.Fatal(err)
	}
	body := "# Findings\n" +
		"| Source | Claim |\n" +
		"|---|---|\n" +
		"| a.com | x |\n" +
		"\n# Summary\nno tables here\n"
	if _, err := w.ApplyPatch(ctx, "runs/6/draft.md", []PatchOp{{Op: OpReplace, Pos: 0, Len: -1, Text: body}}, SourceWriter, "writer", 0); err != nil {
		t.Fatal(err)
	}

	sections := w.ListSections(ctx, "runs/6/draft.md")
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(sections), sections)
	}
	if sections[0].Title != "Findings" || sections[0].TableCount != 1 {
		t.Fatalf("expected Findings section with 1 table, got %+v", sections[0])
	}
	if sections[1].Title != "Summary" || sections[1].TableCount != 0 {
		t.Fatalf("expected Summary section with 0 tables, got %+v", sections[1])
	}
}

func TestProposeCitationsConfirmsAndProjectsRegistry(t *testing.T) {
	w, store := newTestWriter()
	defer w.Close()
	ctx := context.Background()

	if err := w.EnsureRunDocument(ctx, "runs/7/draft.md", "obj", ""); err != nil {
		t.Fatal(err)
	}
	if err := w.ProposeCitations(ctx, "runs/7/draft.md", "run-7", "researcher", []harness.CitationRef{
		{SourceURI: "https://example.com/a", Title: "A"},
	}); err != nil {
		t.Fatal(err)
	}

	events, err := store.Query(ctx, eventstore.Query{Limit: 1000})
	if err != nil {
		t.Fatal(err)
	}
	var sawUpsert, sawRegistry bool
	for _, e := range events {
		switch e.EventType {
		case "global_external_content.upsert":
			sawUpsert = true
		case "qwy.citation_registry":
			sawRegistry = true
		}
	}
	if !sawUpsert {
		t.Fatal("expected global_external_content.upsert event")
	}
	if !sawRegistry {
		t.Fatal("expected qwy.citation_registry event")
	}
}
