// Package writer implements the Writer and Document Model (spec
// §4.E): the single mutator of each run's document, maintaining
// revision monotonicity, overlays, version history, and the citation
// registry. Grounded on internal/sessions/cockroach.go and
// internal/sessions/write_lock.go's per-session single-writer
// serialization idiom, generalized from a chat session's message
// history to a patchable run document, and on internal/markdown for
// section parsing.
package writer

import "time"

// Provenance marks whether a Section's content is accepted (Canon) or
// a pending proposal (spec §3.3).
type Provenance string

const (
	Canon    Provenance = "Canon"
	Proposal Provenance = "Proposal"
)

// VersionSource tags where a Revision originated (spec §4.E.5).
type VersionSource string

const (
	SourceWriter     VersionSource = "Writer"
	SourceUserSave   VersionSource = "UserSave"
	SourceSystem     VersionSource = "System"
	SourceDelegation VersionSource = "Delegation"
)

// Section is one titled region of a Run Document (spec §3.3). Sections
// are a read view derived from the document's header structure; the
// byte-addressed raw text, not the section list, is the patch target.
type Section struct {
	Title      string
	Provenance Provenance
	Start      int // byte offset into the document's raw text
	End        int
	TableCount int // markdown tables found within [Start, End)
}

// Revision is one immutable snapshot in a document's linear history
// (spec §3.3).
type Revision struct {
	Revision  int64
	Content   string
	Source    VersionSource
	Author    string
	Timestamp time.Time
}

// OverlayStatus is an Overlay's lifecycle state (spec §3.3).
type OverlayStatus string

const (
	OverlayActive   OverlayStatus = "Active"
	OverlayResolved OverlayStatus = "Resolved"
	OverlayRejected OverlayStatus = "Rejected"
)

// Overlay is a read-only (in v1) annotation attached to a document.
type Overlay struct {
	OverlayID string
	Author    string
	Status    OverlayStatus
	Start     int
	End       int
	Content   string
}

// CitationStatus is a CitationRecord's lifecycle state (spec §3.3,
// §4.F).
type CitationStatus string

const (
	CitationProposed  CitationStatus = "Proposed"
	CitationConfirmed CitationStatus = "Confirmed"
	CitationRejected  CitationStatus = "Rejected"
)

// CitationRecord tracks one proposed-or-resolved citation (spec §3.3).
type CitationRecord struct {
	CitationID  string
	CitingRunID string
	CitingActor string
	CitedKind   string
	CitedID     string
	Confidence  float64
	Excerpt     string
	Status      CitationStatus
	ProposedBy  string
	ConfirmedBy string
	RejectedBy  string
	ProposedAt  time.Time
	ResolvedAt  time.Time
}

// PatchOpKind distinguishes the three patch operations (spec §3.3).
type PatchOpKind string

const (
	OpInsert  PatchOpKind = "insert"
	OpDelete  PatchOpKind = "delete"
	OpReplace PatchOpKind = "replace"
)

// PatchOp is one tagged-enum mutation over the document's current
// canonical text, applied at an absolute byte position.
type PatchOp struct {
	Op   PatchOpKind `json:"op"`
	Pos  int         `json:"pos"`
	Len  int         `json:"len,omitempty"`
	Text string      `json:"text,omitempty"`
}

// Document is one run's addressable, versioned document (spec §3.3).
// The per-sender dedup window (spec §4.E.3) lives alongside this in
// the owning document actor's state, not here, since Document is also
// handed out as a plain value (e.g. revision snapshots) that doesn't
// need dedup bookkeeping.
type Document struct {
	Path        string
	LiveHeadRev int64
	Content     string
	Revisions   []Revision
	Overlays    []Overlay
	Citations   map[string]*CitationRecord
}
