package coreerrors

import (
	"errors"
	"testing"
)

func TestConflictStaleKindAndMessage(t *testing.T) {
	err := ConflictStale(9)
	if err.Kind != InvariantViolation {
		t.Fatalf("kind = %s, want invariant_violation", err.Kind)
	}
	if err.Retryable() {
		t.Fatal("ConflictStale should not be retryable")
	}
	if got := err.Error(); got == "" {
		t.Fatal("Error() returned empty string")
	}
}

func TestWrapPreservesExistingCoreError(t *testing.T) {
	inner := New(CodeRepeatedAction, "blocked")
	wrapped := Wrap(inner)
	if wrapped != inner {
		t.Fatalf("Wrap should return the same *CoreError when one already exists in the chain")
	}
}

func TestWrapClassifiesTimeout(t *testing.T) {
	err := Wrap(errors.New("context deadline exceeded"))
	if err.Code != CodeTimeout {
		t.Fatalf("code = %s, want timeout", err.Code)
	}
	if !err.Retryable() {
		t.Fatal("timeout errors should be retryable")
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := New(CodeDisallowedTool, "tool not in allow-list")
	if !Is(err, CodeDisallowedTool) {
		t.Fatal("Is should match the error's own code")
	}
	if Is(err, CodeTimeout) {
		t.Fatal("Is should not match an unrelated code")
	}
}

func TestCapacityKindsAreNonRetryable(t *testing.T) {
	for _, code := range []Code{CodeMaxStepsReached, CodeRepeatedAction, CodeRunTimeout} {
		err := New(code, "")
		if err.Kind != Capacity {
			t.Fatalf("%s: kind = %s, want capacity", code, err.Kind)
		}
		if err.Retryable() {
			t.Fatalf("%s: capacity errors should not be retried", code)
		}
	}
}
