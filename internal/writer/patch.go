package writer

import (
	"fmt"
	"strings"

	"github.com/choiros/core/internal/coreerrors"
	"github.com/choiros/core/internal/markdown"
)

// ApplyPatches applies ops in order to content, operating on absolute
// byte positions (spec §4.E.2: "ApplyPatch operates on absolute byte
// positions over the normalized text"). Each op is applied to the
// content as left by the ops before it in the same batch, so a later
// op's position addresses that intermediate text; positions are not
// adjusted for earlier ops.
func ApplyPatches(content string, ops []PatchOp) (string, OpCounts, error) {
	var counts OpCounts
	b := []byte(content)

	for _, op := range ops {
		switch op.Op {
		case OpInsert:
			if op.Pos < 0 || op.Pos > len(b) {
				return "", counts, invalidPos(op)
			}
			out := make([]byte, 0, len(b)+len(op.Text))
			out = append(out, b[:op.Pos]...)
			out = append(out, op.Text...)
			out = append(out, b[op.Pos:]...)
			b = out
			counts.Insert++
		case OpDelete:
			if op.Pos < 0 || op.Len < 0 || op.Pos+op.Len > len(b) {
				return "", counts, invalidPos(op)
			}
			out := make([]byte, 0, len(b)-op.Len)
			out = append(out, b[:op.Pos]...)
			out = append(out, b[op.Pos+op.Len:]...)
			b = out
			counts.Delete++
		case OpReplace:
			if op.Pos < 0 || op.Len < 0 || op.Pos+op.Len > len(b) {
				return "", counts, invalidPos(op)
			}
			out := make([]byte, 0, len(b)-op.Len+len(op.Text))
			out = append(out, b[:op.Pos]...)
			out = append(out, op.Text...)
			out = append(out, b[op.Pos+op.Len:]...)
			b = out
			counts.Replace++
		default:
			return "", counts, coreerrors.New(coreerrors.CodeDocumentUnreadable, fmt.Sprintf("unknown patch op %q", op.Op))
		}
	}

	return string(b), counts, nil
}

func invalidPos(op PatchOp) error {
	return coreerrors.New(coreerrors.CodeDocumentUnreadable, fmt.Sprintf("patch op %s out of bounds at pos=%d len=%d", op.Op, op.Pos, op.Len))
}

// OpCounts tallies a batch's operation taxonomy for the writer.run.patch
// event payload (spec §4.E.2).
type OpCounts struct {
	Insert  int `json:"insert"`
	Delete  int `json:"delete"`
	Replace int `json:"replace"`
}

// parseSections derives the document's Section list from its markdown
// headers, matching the header-to-provenance convention used by
// internal/markdown's table parser for structural scanning. A section
// carrying the `<!-- proposal -->` marker immediately after its header
// is tagged Proposal; all others are Canon.
func parseSections(content string) []Section {
	lines := strings.Split(content, "\n")
	var sections []Section
	offset := 0
	var current *Section

	for _, line := range lines {
		lineLen := len(line) + 1
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			if current != nil {
				current.End = offset
				sections = append(sections, *current)
			}
			title := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
			current = &Section{Title: title, Provenance: Canon, Start: offset}
		} else if current != nil && strings.Contains(line, "<!-- proposal -->") {
			current.Provenance = Proposal
		}
		offset += lineLen
	}
	if current != nil {
		current.End = len(content)
		sections = append(sections, *current)
	}

	for i := range sections {
		sections[i].TableCount = len(markdown.FindTables(content[sections[i].Start:sections[i].End]))
	}
	return sections
}
