package writer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/choiros/core/internal/actorsys"
	"github.com/choiros/core/internal/coreerrors"
	"github.com/choiros/core/internal/corelog"
	"github.com/choiros/core/internal/harness"
	"github.com/choiros/core/internal/metrics"
	"github.com/google/uuid"
)

// command is the Writer's inbox message union (spec §4.E.1), routed
// through a per-path actor mailbox so every mutation of one document
// is strictly serialized, generalizing
// internal/sessions/write_lock.go's per-session mutex into the core's
// actor model (spec §3.4: "The Event Store actor exclusively owns the
// underlying durable log" — the Writer applies the same exclusivity
// principle per document).
type command struct {
	kind  string
	req   any
	reply chan any
}

type docActor struct {
	doc   *Document
	dedup *dedupWindow
}

// Writer owns every run document (spec §4.E). One actor per path
// serializes all mutation; ChangesetSummarizer and citation delivery
// are best-effort side work that never blocks an apply.
type Writer struct {
	ctx          context.Context
	cancel       context.CancelFunc
	supervisor   *actorsys.Supervisor[command]
	sink         harness.EventSink
	log          *corelog.Logger
	summarizer   ChangesetSummarizer
	metrics      *metrics.Core
}

// WithMetrics attaches a metrics.Core that patch-op counters and the
// live-head-revision gauge are recorded against. Optional.
func (w *Writer) WithMetrics(m *metrics.Core) *Writer {
	w.metrics = m
	return w
}

// ChangesetSummarizer produces a human summary and impact level for an
// applied patch batch (spec §4.E.2 step 3). Implementations typically
// run a bounded harness.Harness invocation; failures are swallowed by
// the caller since summarization must never block the apply.
type ChangesetSummarizer interface {
	Summarize(ctx context.Context, before, after string, ops []PatchOp) (summary string, impact string, err error)
}

// NewWriter constructs a Writer. summarizer may be nil to disable
// changeset summarization entirely.
func NewWriter(sink harness.EventSink, log *corelog.Logger, summarizer ChangesetSummarizer) *Writer {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{ctx: ctx, cancel: cancel, sink: sink, log: log, summarizer: summarizer}
	w.supervisor = actorsys.NewSupervisor[command](w.startDocActor)
	return w
}

func (w *Writer) startDocActor(ctx context.Context, path string) (actorsys.ActorRef[command], *actorsys.JoinHandle) {
	state := &docActor{doc: &Document{Path: path, Citations: make(map[string]*CitationRecord)}, dedup: newDedupWindow()}
	return actorsys.Spawn[command](ctx, "writer-"+path, 64, func(ctx context.Context, c command) {
		w.handle(ctx, state, c)
	}, nil)
}

func (w *Writer) ensureActor(path string) actorsys.ActorRef[command] {
	return w.supervisor.Ensure(w.ctx, path)
}

func (w *Writer) handle(ctx context.Context, state *docActor, c command) {
	switch c.kind {
	case "ensure":
		req := c.req.(ensureReq)
		w.doEnsure(ctx, state, req)
		c.reply <- nil
	case "applyPatch":
		req := c.req.(applyPatchReq)
		rev, err := w.doApplyPatch(ctx, state, req)
		c.reply <- applyPatchResp{revision: rev, err: err}
	case "submitUserPrompt":
		req := c.req.(submitUserPromptReq)
		rev, err := w.doSubmitUserPrompt(ctx, state, req)
		c.reply <- applyPatchResp{revision: rev, err: err}
	case "enqueueInbound":
		req := c.req.(enqueueInboundReq)
		dup := w.doEnqueueInbound(ctx, state, req)
		c.reply <- dup
	case "proposeCitations":
		req := c.req.(proposeCitationsReq)
		w.doProposeCitations(ctx, state, req)
		c.reply <- nil
	case "listVersions":
		c.reply <- append([]Revision(nil), state.doc.Revisions...)
	case "getVersion":
		req := c.req.(int64)
		c.reply <- w.doGetVersion(state, req)
	case "listOverlays":
		c.reply <- append([]Overlay(nil), state.doc.Overlays...)
	case "listSections":
		c.reply <- parseSections(state.doc.Content)
	}
}

type ensureReq struct {
	path      string
	objective string
	desktopID string
}

// EnsureRunDocument idempotently creates the initial document with a
// header and empty Conductor/Researcher/Terminal/User proposal
// sections (spec §4.D.2 step 2).
func (w *Writer) EnsureRunDocument(ctx context.Context, path, objective, desktopID string) error {
	ref := w.ensureActor(path)
	reply := make(chan any, 1)
	if err := ref.TellBlocking(ctx, command{kind: "ensure", req: ensureReq{path: path, objective: objective, desktopID: desktopID}, reply: reply}); err != nil {
		return err
	}
	<-reply
	return nil
}

func (w *Writer) doEnsure(ctx context.Context, state *docActor, req ensureReq) {
	if len(state.doc.Revisions) > 0 {
		return // idempotent
	}
	content := fmt.Sprintf("# %s\n\n## Conductor\n\n<!-- proposal -->\n\n## Researcher\n\n<!-- proposal -->\n\n## Terminal\n\n<!-- proposal -->\n\n## User\n\n<!-- proposal -->\n", req.objective)
	state.doc.Content = content
	state.doc.LiveHeadRev = 1
	state.doc.Revisions = append(state.doc.Revisions, Revision{Revision: 1, Content: content, Source: SourceSystem, Author: "conductor", Timestamp: time.Now().UTC()})
}

type applyPatchReq struct {
	path           string
	ops            []PatchOp
	source         VersionSource
	author         string
	baseRevision   int64 // 0 means "apply against current head, no staleness check"
}

type applyPatchResp struct {
	revision int64
	err      error
}

// ApplyPatch applies ops to the current head revision (spec §4.E.1,
// §4.E.2). If baseRevision is non-zero and does not match the current
// head, the apply is rejected with coreerrors.ConflictStale.
func (w *Writer) ApplyPatch(ctx context.Context, path string, ops []PatchOp, source VersionSource, author string, baseRevision int64) (int64, error) {
	ref := w.ensureActor(path)
	reply := make(chan any, 1)
	if err := ref.TellBlocking(ctx, command{kind: "applyPatch", req: applyPatchReq{path: path, ops: ops, source: source, author: author, baseRevision: baseRevision}, reply: reply}); err != nil {
		return 0, err
	}
	resp := (<-reply).(applyPatchResp)
	return resp.revision, resp.err
}

// ApplyPatchContent replaces the full document content at the given
// path with content, as a single Replace op spanning the existing
// text. This is the conductor.WriterClient-facing shape: workers
// return whole proposed documents, not fine-grained patches.
func (w *Writer) ApplyPatchContent(ctx context.Context, path string, content []byte, source, author string) error {
	if content == nil {
		return nil
	}
	ref := w.ensureActor(path)
	reply := make(chan any, 1)
	if err := ref.TellBlocking(ctx, command{kind: "applyPatch", req: applyPatchReq{
		path: path, author: author, source: VersionSource(source),
		ops: []PatchOp{{Op: OpReplace, Pos: 0, Len: -1, Text: string(content)}},
	}, reply: reply}); err != nil {
		return err
	}
	resp := (<-reply).(applyPatchResp)
	return resp.err
}

func (w *Writer) doApplyPatch(ctx context.Context, state *docActor, req applyPatchReq) (int64, error) {
	if req.baseRevision != 0 && req.baseRevision != state.doc.LiveHeadRev {
		return 0, coreerrors.ConflictStale(state.doc.LiveHeadRev)
	}

	before := state.doc.Content
	ops := req.ops
	for i := range ops {
		if ops[i].Op == OpReplace && ops[i].Len == -1 {
			ops[i].Len = len(before)
		}
	}

	after, counts, err := ApplyPatches(before, ops)
	if err != nil {
		return 0, err
	}

	state.doc.Content = after
	state.doc.LiveHeadRev++
	rev := state.doc.LiveHeadRev
	state.doc.Revisions = append(state.doc.Revisions, Revision{Revision: rev, Content: after, Source: req.source, Author: req.author, Timestamp: time.Now().UTC()})

	w.sink.Append(ctx, "writer", "writer.actor.apply_text", map[string]any{"path": req.path, "revision": rev}, "", "")
	w.sink.Append(ctx, "writer", "writer.run.patch", map[string]any{"path": req.path, "revision": rev, "ops": counts, "source": req.source}, "", "")

	if w.metrics != nil {
		for i := 0; i < counts.Insert; i++ {
			w.metrics.RecordPatch("insert")
		}
		for i := 0; i < counts.Delete; i++ {
			w.metrics.RecordPatch("delete")
		}
		for i := 0; i < counts.Replace; i++ {
			w.metrics.RecordPatch("replace")
		}
		w.metrics.SetRevision(req.path, rev)
	}

	if req.source == SourceWriter || req.source == SourceDelegation {
		w.projectCitationRegistry(ctx, state, req.path, rev)
	}

	if w.summarizer != nil {
		go w.summarizeAsync(req.path, before, after, ops, rev)
	}

	return rev, nil
}

func (w *Writer) summarizeAsync(path, before, after string, ops []PatchOp, revision int64) {
	summary, impact, err := w.summarizer.Summarize(w.ctx, before, after, ops)
	if err != nil {
		if w.log != nil {
			w.log.Warn(w.ctx, "writer: changeset summarization failed (best-effort)", "path", path, "error", err)
		}
		return
	}
	w.sink.Append(w.ctx, "writer", "writer.run.changeset", map[string]any{
		"patch_id": uuid.NewString(), "loop_id": revision, "summary": summary, "impact": impact,
	}, "", "")
}

type submitUserPromptReq struct {
	path    string
	runID   string
	record  string
	patches []PatchOp
}

// SubmitUserPrompt records a first-class user editorial input (spec
// §4.E.1).
func (w *Writer) SubmitUserPrompt(ctx context.Context, path, runID, record string, patches []PatchOp) (int64, error) {
	ref := w.ensureActor(path)
	reply := make(chan any, 1)
	if err := ref.TellBlocking(ctx, command{kind: "submitUserPrompt", req: submitUserPromptReq{path: path, runID: runID, record: record, patches: patches}, reply: reply}); err != nil {
		return 0, err
	}
	resp := (<-reply).(applyPatchResp)
	return resp.revision, resp.err
}

func (w *Writer) doSubmitUserPrompt(ctx context.Context, state *docActor, req submitUserPromptReq) (int64, error) {
	w.sink.Append(ctx, "writer", "user_input", map[string]string{"record": req.record, "surface": "writer.submit_user_prompt"}, req.runID, "")
	if len(req.patches) == 0 {
		return state.doc.LiveHeadRev, nil
	}
	return w.doApplyPatch(ctx, state, applyPatchReq{path: req.path, ops: req.patches, source: SourceUserSave, author: "user"})
}

type enqueueInboundReq struct {
	path      string
	messageID string
	source    string
	payload   []byte
}

// EnqueueInbound deduplicates asynchronous inbound messages (spec
// §4.E.3). Returns true if the message was a duplicate and therefore
// acknowledged as a no-op.
func (w *Writer) EnqueueInbound(ctx context.Context, path, messageID, source string, payload []byte) bool {
	ref := w.ensureActor(path)
	reply := make(chan any, 1)
	if err := ref.TellBlocking(ctx, command{kind: "enqueueInbound", req: enqueueInboundReq{path: path, messageID: messageID, source: source, payload: payload}, reply: reply}); err != nil {
		return false
	}
	return (<-reply).(bool)
}

// doEnqueueInbound records the (sender, message_id) pair as seen for
// dedup, then applies the inbound payload synchronously before
// acknowledging it (spec §4.E.3: "the content mutation is synchronous
// and the telemetry follows" — apply_text precedes or equals the
// enqueue's seq). A message whose apply fails stays recorded as seen.
func (w *Writer) doEnqueueInbound(ctx context.Context, state *docActor, req enqueueInboundReq) bool {
	if state.dedup.seen(req.source + "\x00" + req.messageID) {
		w.sink.Append(ctx, "writer", "writer.actor.inbox.duplicate", map[string]string{"message_id": req.messageID, "source": req.source}, "", "")
		return true
	}

	if len(req.payload) > 0 {
		if _, err := w.doApplyPatch(ctx, state, applyPatchReq{
			path: req.path, author: req.source, source: SourceWriter,
			ops: []PatchOp{{Op: OpInsert, Pos: len(state.doc.Content), Text: string(req.payload)}},
		}); err != nil && w.log != nil {
			w.log.Warn(ctx, "writer: apply inbound payload failed", "path", req.path, "message_id", req.messageID, "error", err)
		}
	}

	w.sink.Append(ctx, "writer", "writer.actor.inbox.enqueued", map[string]string{"message_id": req.messageID, "source": req.source}, "", "")
	return false
}

// ListVersions returns revision metadata (spec §4.E.5).
func (w *Writer) ListVersions(ctx context.Context, path string) []Revision {
	ref := w.ensureActor(path)
	reply := make(chan any, 1)
	if err := ref.TellBlocking(ctx, command{kind: "listVersions", reply: reply}); err != nil {
		return nil
	}
	return (<-reply).([]Revision)
}

// GetVersion returns the full content of one revision, or ok=false if
// unknown (spec §4.E.5).
func (w *Writer) GetVersion(ctx context.Context, path string, revision int64) (Revision, bool) {
	ref := w.ensureActor(path)
	reply := make(chan any, 1)
	if err := ref.TellBlocking(ctx, command{kind: "getVersion", req: revision, reply: reply}); err != nil {
		return Revision{}, false
	}
	resp := (<-reply).(getVersionResp)
	return resp.rev, resp.ok
}

type getVersionResp struct {
	rev Revision
	ok  bool
}

func (w *Writer) doGetVersion(state *docActor, revision int64) getVersionResp {
	for _, r := range state.doc.Revisions {
		if r.Revision == revision {
			return getVersionResp{rev: r, ok: true}
		}
	}
	return getVersionResp{}
}

// ListOverlays returns the document's overlays (spec §4.E.1).
func (w *Writer) ListOverlays(ctx context.Context, path string) []Overlay {
	ref := w.ensureActor(path)
	reply := make(chan any, 1)
	if err := ref.TellBlocking(ctx, command{kind: "listOverlays", reply: reply}); err != nil {
		return nil
	}
	return (<-reply).([]Overlay)
}

// ListSections returns the document's current header-derived Section
// read view (spec §3.3), including each section's table count scanned
// by internal/markdown. Sections are never stored on Document: they're
// recomputed from the live content on every call, the same on-demand
// convention the header-to-provenance parse already uses.
func (w *Writer) ListSections(ctx context.Context, path string) []Section {
	ref := w.ensureActor(path)
	reply := make(chan any, 1)
	if err := ref.TellBlocking(ctx, command{kind: "listSections", reply: reply}); err != nil {
		return nil
	}
	return (<-reply).([]Section)
}

// ReadDocument returns the current canonical content (conductor.WriterClient).
func (w *Writer) ReadDocument(ctx context.Context, path string) (string, error) {
	versions := w.ListVersions(ctx, path)
	if len(versions) == 0 {
		return "", nil
	}
	return versions[len(versions)-1].Content, nil
}

// projectCitationRegistry implements spec §4.E.6: on a writer-source
// version save, collect Confirmed citations for the run and emit the
// registry snapshot.
func (w *Writer) projectCitationRegistry(ctx context.Context, state *docActor, path string, revision int64) {
	type stub struct {
		CitationID string `json:"citation_id"`
		CitedKind  string `json:"cited_kind"`
		CitedID    string `json:"cited_id"`
	}
	var registry []stub
	for _, c := range state.doc.Citations {
		if c.Status == CitationConfirmed {
			registry = append(registry, stub{CitationID: c.CitationID, CitedKind: c.CitedKind, CitedID: c.CitedID})
		}
	}
	if len(registry) == 0 {
		return
	}
	w.sink.Append(ctx, "writer", "qwy.citation_registry", map[string]any{
		"version_id": revision, "citation_registry": registry, "path": path,
	}, "", "")
}

type proposeCitationsReq struct {
	path        string
	citingRunID string
	citingActor string
	refs        []harness.CitationRef
}

// ProposeCitations implements the Conductor-facing half of the
// citation lifecycle (spec §4.F step 2): the harvesting harness
// already announced each ref with a citation.proposed trace event
// (§4.F step 1), so this records the stub against the document and
// resolves it. This core has no separate human-review surface for
// citations, so every proposed stub is resolved to Confirmed
// immediately rather than left Proposed indefinitely.
func (w *Writer) ProposeCitations(ctx context.Context, path, citingRunID, citingActor string, refs []harness.CitationRef) error {
	ref := w.ensureActor(path)
	reply := make(chan any, 1)
	if err := ref.TellBlocking(ctx, command{kind: "proposeCitations", req: proposeCitationsReq{
		path: path, citingRunID: citingRunID, citingActor: citingActor, refs: refs,
	}, reply: reply}); err != nil {
		return err
	}
	<-reply
	return nil
}

func (w *Writer) doProposeCitations(ctx context.Context, state *docActor, req proposeCitationsReq) {
	for _, r := range req.refs {
		rec := &CitationRecord{
			CitationID:  uuid.NewString(),
			CitingRunID: req.citingRunID,
			CitingActor: req.citingActor,
			CitedKind:   "url",
			CitedID:     r.SourceURI,
			Excerpt:     r.Snippet,
			Status:      CitationProposed,
			ProposedBy:  req.citingActor,
			ProposedAt:  time.Now().UTC(),
		}
		state.doc.Citations[rec.CitationID] = rec
		w.ConfirmCitation(ctx, req.path, rec)
	}
	w.projectCitationRegistry(ctx, state, req.path, state.doc.LiveHeadRev)
}

// ConfirmCitation and RejectCitation implement the Writer's side of
// the citation lifecycle protocol (spec §4.F step 2): upon delegation
// worker completion, resolve each proposed stub and, on confirmation,
// publish the external content upsert.
func (w *Writer) ConfirmCitation(ctx context.Context, path string, citation *CitationRecord) {
	citation.Status = CitationConfirmed
	citation.ConfirmedBy = "writer"
	citation.ResolvedAt = time.Now().UTC()
	w.sink.Append(ctx, "writer", "citation.confirmed", map[string]any{"citation_id": citation.CitationID, "confirmed_by": "writer", "confirmed_at": citation.ResolvedAt}, citation.CitingRunID, "")

	hash := sha256.Sum256([]byte(citation.CitedID))
	w.sink.Append(ctx, "writer", "global_external_content.upsert", map[string]any{
		"cited_kind": citation.CitedKind, "cited_id": citation.CitedID,
		"content_hash": hex.EncodeToString(hash[:]), "citing_run_id": citation.CitingRunID, "action": "upsert",
	}, citation.CitingRunID, "")
}

func (w *Writer) RejectCitation(ctx context.Context, citation *CitationRecord) {
	citation.Status = CitationRejected
	citation.RejectedBy = "writer"
	citation.ResolvedAt = time.Now().UTC()
	w.sink.Append(ctx, "writer", "citation.rejected", map[string]any{"citation_id": citation.CitationID, "rejected_by": "writer", "rejected_at": citation.ResolvedAt}, citation.CitingRunID, "")
}

// Close stops every document actor.
func (w *Writer) Close() {
	w.cancel()
}
