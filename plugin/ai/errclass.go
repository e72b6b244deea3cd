package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by model runtimes. Runtime implementations wrap
// these so classification does not depend on provider error strings.
var (
	// ErrCapacityExceeded indicates the session's input quota cannot hold the
	// request.
	ErrCapacityExceeded = errors.New("input capacity exceeded")
	// ErrFirstFragmentTimeout indicates the model produced no output before
	// the first-fragment deadline.
	ErrFirstFragmentTimeout = errors.New("first fragment timeout")
	// ErrSessionDestroyed indicates an operation on a destroyed session handle.
	ErrSessionDestroyed = errors.New("session destroyed")
)

// FailureKind categorizes a turn failure for retry dispatch. The retry
// coordinator switches on the kind instead of matching error messages.
type FailureKind int

const (
	// FailureFatal is any error with no recovery policy. Not retried.
	FailureFatal FailureKind = iota

	// FailureTimeout indicates the model stalled before its first fragment.
	// Retried via session reconstruction up to the attempt ceiling.
	FailureTimeout

	// FailureCapacity indicates a quota/capacity error during generation.
	// Retried via excerpt shrinkage up to the attempt ceiling.
	FailureCapacity

	// FailureBudget indicates no excerpt count fits the input budget, even at
	// the minimum. Terminal, user-visible, never retried.
	FailureBudget

	// FailureMalformed indicates the final stream output failed to parse.
	// Recovered locally; never terminal.
	FailureMalformed

	// FailureStaleTarget indicates the destination page is gone. The turn
	// aborts silently with no user-visible error and no history mutation.
	FailureStaleTarget
)

// String returns the string representation of FailureKind.
func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureCapacity:
		return "capacity_exceeded"
	case FailureBudget:
		return "budget_exhausted"
	case FailureMalformed:
		return "malformed_output"
	case FailureStaleTarget:
		return "stale_target"
	default:
		return "fatal"
	}
}

// TurnError wraps an error with its failure kind and a user-facing message.
type TurnError struct {
	Kind FailureKind
	Err  error
}

// Error returns a formatted error message.
func (e *TurnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("turn failed: %s", e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the original error for errors.Is/As.
func (e *TurnError) Unwrap() error {
	return e.Err
}

// UserMessage returns the single human-readable message surfaced for a
// terminal failure of this kind.
func (e *TurnError) UserMessage() string {
	switch e.Kind {
	case FailureTimeout:
		return "The model took too long to respond. Please try again."
	case FailureCapacity:
		return "This question needs more context than the model can hold. Please reduce your question or start a new conversation."
	case FailureBudget:
		return "The retrieved paper excerpts do not fit the model's context window. Try a more specific question."
	default:
		return "Something went wrong while answering. Please try again."
	}
}

// NewTurnError builds a TurnError of the given kind.
func NewTurnError(kind FailureKind, err error) *TurnError {
	return &TurnError{Kind: kind, Err: err}
}

// Classify analyzes an error and determines its failure kind.
func Classify(err error) *TurnError {
	if err == nil {
		return nil
	}

	var turnErr *TurnError
	if errors.As(err, &turnErr) {
		return turnErr
	}

	if errors.Is(err, ErrCapacityExceeded) {
		return &TurnError{Kind: FailureCapacity, Err: err}
	}
	if errors.Is(err, ErrFirstFragmentTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return &TurnError{Kind: FailureTimeout, Err: err}
	}

	// Provider errors that did not come through our sentinels.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context length"),
		strings.Contains(msg, "too many tokens"),
		strings.Contains(msg, "quota"):
		return &TurnError{Kind: FailureCapacity, Err: err}
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return &TurnError{Kind: FailureTimeout, Err: err}
	}

	return &TurnError{Kind: FailureFatal, Err: err}
}

// IsRetryable reports whether the error warrants another attempt under either
// retry dimension.
func IsRetryable(err error) bool {
	classified := Classify(err)
	if classified == nil {
		return false
	}
	return classified.Kind == FailureTimeout || classified.Kind == FailureCapacity
}
