package reconcile

import (
	"context"
	"fmt"
)

// Condition is a predicate over a status snapshot.
type Condition[S any] func(snapshot S) bool

// StatusGetter reads the current status of a remote resource.
// Implementations must not change the resource.
type StatusGetter[S any] interface {
	GetStatus(ctx context.Context) (S, error)
}

// StatusSetter pushes the desired state to a remote resource.
// It may be invoked again after an attempt whose effect was never observed.
type StatusSetter interface {
	SetStatus(ctx context.Context) error
}

// GetterFunc adapts a function to StatusGetter.
type GetterFunc[S any] func(ctx context.Context) (S, error)

// GetStatus calls f(ctx).
func (f GetterFunc[S]) GetStatus(ctx context.Context) (S, error) {
	return f(ctx)
}

// SetterFunc adapts a function to StatusSetter.
type SetterFunc func(ctx context.Context) error

// SetStatus calls f(ctx).
func (f SetterFunc) SetStatus(ctx context.Context) error {
	return f(ctx)
}

// Policy decides what a snapshot means for the run.
// Predicates are evaluated in a fixed order: Wait, Ready, Success.
type Policy[S any] struct {
	// Wait matches transitional states. No write is issued while it matches.
	Wait Condition[S]
	// Ready matches states where a write should move the resource forward.
	Ready Condition[S]
	// Success matches the desired end state.
	Success Condition[S]
	// Unmatched is reported when no predicate matches. Optional.
	Unmatched *UnmatchedError
}

func (p Policy[S]) validate() error {
	switch {
	case p.Wait == nil:
		return fmt.Errorf("%w: wait condition is required", ErrInvalidConfig)
	case p.Ready == nil:
		return fmt.Errorf("%w: ready condition is required", ErrInvalidConfig)
	case p.Success == nil:
		return fmt.Errorf("%w: success condition is required", ErrInvalidConfig)
	}
	return nil
}

// decision is the branch taken for one snapshot.
type decision int

const (
	decideWait decision = iota
	decideWrite
	decideMaxRetries
	decideSuccess
	decideTTL
	decideUnmatched
)

func (d decision) String() string {
	switch d {
	case decideWait:
		return "wait"
	case decideWrite:
		return "write"
	case decideMaxRetries:
		return "max_retries"
	case decideSuccess:
		return "success"
	case decideTTL:
		return "ttl"
	case decideUnmatched:
		return "unmatched"
	default:
		return "unknown"
	}
}

// decide applies the policy to a snapshot. First match wins.
func (p Policy[S]) decide(snapshot S, remainingAttempts, ttl int) decision {
	switch {
	case p.Wait(snapshot):
		return decideWait
	case p.Ready(snapshot) && remainingAttempts > 0:
		return decideWrite
	case p.Ready(snapshot):
		return decideMaxRetries
	case p.Success(snapshot):
		return decideSuccess
	case ttl <= 0:
		return decideTTL
	default:
		return decideUnmatched
	}
}
