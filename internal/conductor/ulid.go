package conductor

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid"
)

// newULID mints a run/task identifier (spec §3.2 "run_id (ULID)"),
// promoting the corpus's existing transitive oklog/ulid dependency to
// direct use.
func newULID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
