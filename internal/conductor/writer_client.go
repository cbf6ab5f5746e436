package conductor

import (
	"context"

	"github.com/choiros/core/internal/harness"
)

// WriterClient is the Conductor's narrow view of the Writer (spec
// §4.E.1, §4.F): the inbox messages the Conductor lifecycle actually
// sends. A full internal/writer.Writer satisfies this.
type WriterClient interface {
	EnsureRunDocument(ctx context.Context, path, objective, desktopID string) error
	ApplyPatchContent(ctx context.Context, path string, content []byte, source, author string) error
	ReadDocument(ctx context.Context, path string) (string, error)
	ProposeCitations(ctx context.Context, path, citingRunID, citingActor string, refs []harness.CitationRef) error
}
