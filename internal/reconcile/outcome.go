package reconcile

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned by New for an incomplete or inconsistent controller.
	ErrInvalidConfig = errors.New("invalid controller configuration")

	// ErrMaxRetriesExceeded means the resource stayed ready-for-write after every attempt.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrTTLExceeded means the resource stayed in a wait state for too long.
	ErrTTLExceeded = errors.New("ttl exceeded")

	// ErrUnhandledStatus is returned by Run when no predicate matched and the
	// policy has no Unmatched error. This is a policy coverage defect.
	ErrUnhandledStatus = errors.New("status not handled by policy")
)

// UnsupportedStateError is the conventional kind for statuses a policy does not expect.
const UnsupportedStateError = "UnsupportedStateError"

// UnmatchedError is raised when a snapshot matches none of the policy predicates.
type UnmatchedError struct {
	Kind    string
	Message string
	// Status is a rendering of the snapshot that matched nothing. Filled in by Run.
	Status string
}

func (e *UnmatchedError) Error() string {
	msg := e.Kind
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Status != "" {
		msg += fmt.Sprintf(" (status %s)", e.Status)
	}
	return msg
}

// OutcomeKind tags the terminal result of a run.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeMaxRetriesExceeded
	OutcomeTTLExceeded
	OutcomeUnmatched
	OutcomeCancelled
	// OutcomeFailed means a getter or setter call returned an error.
	OutcomeFailed
)

// String returns the snake_case name used in logs, metrics and the ledger.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeMaxRetriesExceeded:
		return "max_retries_exceeded"
	case OutcomeTTLExceeded:
		return "ttl_exceeded"
	case OutcomeUnmatched:
		return "unmatched"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one run.
type Outcome[S any] struct {
	Kind OutcomeKind

	// Snapshot is the last snapshot read. Zero if the run was cancelled before the first read.
	Snapshot S

	Polls             int
	Writes            int
	RemainingAttempts int
	TTL               int

	// Unmatched is set for OutcomeUnmatched.
	Unmatched *UnmatchedError

	// cause is the context error for OutcomeCancelled and the capability
	// error for OutcomeFailed.
	cause error
}

// Succeeded reports whether the resource converged.
func (o Outcome[S]) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// Err maps the outcome to an error. It returns nil on success.
func (o Outcome[S]) Err() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeMaxRetriesExceeded:
		return ErrMaxRetriesExceeded
	case OutcomeTTLExceeded:
		return ErrTTLExceeded
	case OutcomeUnmatched:
		if o.Unmatched != nil {
			return o.Unmatched
		}
		return ErrUnhandledStatus
	case OutcomeCancelled:
		if o.cause != nil {
			return o.cause
		}
		return context.Canceled
	case OutcomeFailed:
		return o.cause
	default:
		return fmt.Errorf("unknown outcome %d", o.Kind)
	}
}
