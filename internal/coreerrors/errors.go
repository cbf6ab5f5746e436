// Package coreerrors defines the error taxonomy shared by every core
// component: Event Store, Actor Runtime, Agent Harness, Conductor, and
// Writer. Errors are classified by kind, not by source type, so that
// callers can make retry and surfacing decisions without depending on a
// specific component's concrete error type.
package coreerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a CoreError for retry policy and surfacing decisions.
type Kind string

const (
	// Transient errors may succeed on retry: Timeout, UpstreamUnavailable,
	// WriteJournalFull.
	Transient Kind = "transient"

	// InvariantViolation errors are not retried and are surfaced to the
	// caller as typed errors: ConflictStale, DuplicateMessage,
	// AgendaItemNotReady, DisallowedTool.
	InvariantViolation Kind = "invariant_violation"

	// Capacity errors are mapped to a non-error terminal outcome
	// (Blocked or Completed{reason}) rather than propagated as failures:
	// MaxStepsReached, RepeatedAction, RunTimeout.
	Capacity Kind = "capacity"

	// Fatal errors are surfaced immediately and escalated to the
	// supervisor: StoreCorrupted, DocumentUnreadable.
	Fatal Kind = "fatal"
)

// Code enumerates the specific error codes named by the specification.
type Code string

const (
	CodeTimeout             Code = "timeout"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeWriteJournalFull    Code = "write_journal_full"
	CodeConflictStale       Code = "conflict_stale"
	CodeDuplicateMessage    Code = "duplicate_message"
	CodeAgendaItemNotReady  Code = "agenda_item_not_ready"
	CodeDisallowedTool      Code = "disallowed_tool"
	CodeMaxStepsReached     Code = "max_steps_reached"
	CodeRepeatedAction      Code = "repeated_action"
	CodeRunTimeout          Code = "run_timeout"
	CodeStoreCorrupted      Code = "store_corrupted"
	CodeDocumentUnreadable  Code = "document_unreadable"
	CodeWriteFailed         Code = "write_failed"
	CodeUnknown             Code = "unknown"
)

// kindByCode is the canonical mapping from code to kind. Unregistered
// codes default to InvariantViolation, which is the conservative choice
// (no silent retry, no silent terminal-state conversion).
var kindByCode = map[Code]Kind{
	CodeTimeout:             Transient,
	CodeUpstreamUnavailable: Transient,
	CodeWriteJournalFull:    Transient,
	CodeConflictStale:       InvariantViolation,
	CodeDuplicateMessage:    InvariantViolation,
	CodeAgendaItemNotReady:  InvariantViolation,
	CodeDisallowedTool:      InvariantViolation,
	CodeMaxStepsReached:     Capacity,
	CodeRepeatedAction:      Capacity,
	CodeRunTimeout:          Capacity,
	CodeStoreCorrupted:      Fatal,
	CodeDocumentUnreadable:  Fatal,
	CodeWriteFailed:         Fatal,
}

// CoreError is the structured error type returned by all core components.
type CoreError struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error

	// ConflictRevision carries the current revision for ConflictStale errors.
	ConflictRevision int64
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s:%s]", e.Kind, e.Code))
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.Code == CodeConflictStale {
		parts = append(parts, fmt.Sprintf("(current_revision=%d)", e.ConflictRevision))
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause, if any.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller should consider retrying.
func (e *CoreError) Retryable() bool {
	return e.Kind == Transient
}

// New constructs a CoreError for the given code, deriving its kind from
// the canonical mapping.
func New(code Code, message string) *CoreError {
	return &CoreError{Kind: kindOf(code), Code: code, Message: message}
}

// Wrap constructs a CoreError from an underlying error, classifying it
// when no explicit code is known by inspecting the error text. This
// mirrors how the harness classifies opaque tool/provider errors that
// arrive without an existing CoreError in their chain.
func Wrap(cause error) *CoreError {
	if cause == nil {
		return nil
	}
	var existing *CoreError
	if errors.As(cause, &existing) {
		return existing
	}
	code := classify(cause)
	return &CoreError{Kind: kindOf(code), Code: code, Message: cause.Error(), Cause: cause}
}

// ConflictStale builds the stale-patch-base error named in §4.E.7.
func ConflictStale(currentRevision int64) *CoreError {
	return &CoreError{
		Kind:             InvariantViolation,
		Code:             CodeConflictStale,
		Message:          "patch applied against a stale base revision",
		ConflictRevision: currentRevision,
	}
}

func kindOf(code Code) Kind {
	if k, ok := kindByCode[code]; ok {
		return k
	}
	return InvariantViolation
}

// classify infers a Code from an opaque error's text. Used only for
// errors originating outside this module's control (third-party client
// libraries, the standard library). Anything produced by this module's
// own components should already carry an explicit Code.
func classify(err error) Code {
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded"):
		return CodeTimeout
	case strings.Contains(s, "connection") || strings.Contains(s, "unreachable") || strings.Contains(s, "dns"):
		return CodeUpstreamUnavailable
	default:
		return CodeUnknown
	}
}

// Is reports whether err is a CoreError with the given code.
func Is(err error, code Code) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
