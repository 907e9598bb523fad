// Package reconcile provides the poll-and-converge controller that drives a
// remote resource to a desired status.
//
// A Controller reads the resource status through a StatusGetter, classifies the
// snapshot with a Policy and, when the resource is ready for it, pushes the
// desired state through a StatusSetter. Runs are bounded by a write budget
// (max retries) and a wait budget (TTL) that is refilled after every write.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxRetries = 3
	DefaultTTL        = 120
	DefaultPollDelay  = 15 * time.Second
)

var tracer = otel.Tracer("resourcectl/reconcile")

// SleepFunc suspends the run between polls. It must return ctx.Err() if the
// context ends first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config holds the run bounds. Zero values are taken literally; start from
// DefaultConfig to get the defaults.
type Config struct {
	// Name identifies the controller in logs and traces.
	Name string

	MaxRetries int
	TTL        int
	PollDelay  time.Duration

	// Sleep overrides the poll-delay suspension. Defaults to Sleep.
	Sleep SleepFunc
}

// DefaultConfig returns a Config with the default bounds.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		TTL:        DefaultTTL,
		PollDelay:  DefaultPollDelay,
	}
}

// Controller drives one kind of resource towards the state its Policy describes.
// It is immutable and safe for concurrent runs.
type Controller[S any] struct {
	policy Policy[S]
	getter StatusGetter[S]
	setter StatusSetter
	cfg    Config
}

// New creates a Controller.
func New[S any](policy Policy[S], getter StatusGetter[S], setter StatusSetter, cfg Config) (*Controller[S], error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	if getter == nil {
		return nil, fmt.Errorf("%w: status getter is required", ErrInvalidConfig)
	}
	if setter == nil {
		return nil, fmt.Errorf("%w: status setter is required", ErrInvalidConfig)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidConfig, cfg.MaxRetries)
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("%w: ttl must not be negative, got %d", ErrInvalidConfig, cfg.TTL)
	}
	if cfg.PollDelay < 0 {
		return nil, fmt.Errorf("%w: poll delay must not be negative, got %s", ErrInvalidConfig, cfg.PollDelay)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}

	return &Controller[S]{
		policy: policy,
		getter: getter,
		setter: setter,
		cfg:    cfg,
	}, nil
}

// Name returns the configured controller name.
func (c *Controller[S]) Name() string {
	return c.cfg.Name
}

// Config returns the run bounds.
func (c *Controller[S]) Config() Config {
	return c.cfg
}

// run is the mutable state of one Run call.
type run[S any] struct {
	remainingAttempts int
	ttl               int
	polls             int
	writes            int
	snapshot          S
}

func (r *run[S]) outcome(kind OutcomeKind) Outcome[S] {
	return Outcome[S]{
		Kind:              kind,
		Snapshot:          r.snapshot,
		Polls:             r.polls,
		Writes:            r.writes,
		RemainingAttempts: r.remainingAttempts,
		TTL:               r.ttl,
	}
}

// Run polls the resource until a terminal outcome is reached.
//
// Errors from the getter or setter are returned unchanged together with an
// OutcomeFailed carrying the progress made so far. When the context ends the
// outcome is OutcomeCancelled and the error is nil. An unmatched snapshot
// without a configured Unmatched error returns ErrUnhandledStatus.
func (c *Controller[S]) Run(ctx context.Context, observers ...Observer[S]) (Outcome[S], error) {
	ctx, span := tracer.Start(ctx, "reconcile.Run", trace.WithAttributes(
		attribute.String("controller", c.cfg.Name),
		attribute.Int("max_retries", c.cfg.MaxRetries),
		attribute.Int("ttl", c.cfg.TTL),
	))
	defer span.End()

	obs := Observers[S](observers)
	out, err := c.loop(ctx, span, obs)

	span.SetAttributes(
		attribute.String("outcome", out.Kind.String()),
		attribute.Int("polls", out.Polls),
		attribute.Int("writes", out.Writes),
	)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !out.Succeeded():
		span.SetStatus(codes.Error, out.Kind.String())
	}

	obs.OnOutcome(out)
	c.logOutcome(out)
	return out, err
}

func (c *Controller[S]) loop(ctx context.Context, span trace.Span, obs Observers[S]) (Outcome[S], error) {
	r := &run[S]{
		remainingAttempts: c.cfg.MaxRetries,
		ttl:               c.cfg.TTL,
	}

	for {
		if err := ctx.Err(); err != nil {
			return c.cancelled(r, err), nil
		}

		snapshot, err := c.getter.GetStatus(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return c.cancelled(r, ctxErr), nil
			}
			return c.failed(r, err), err
		}
		r.polls++
		r.snapshot = snapshot

		d := c.policy.decide(snapshot, r.remainingAttempts, r.ttl)
		switch d {
		case decideWait:
			r.ttl--
			c.step(span, obs, r, d)
			if r.ttl <= 0 {
				return r.outcome(OutcomeTTLExceeded), nil
			}

		case decideWrite:
			if err := c.setter.SetStatus(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return c.cancelled(r, ctxErr), nil
				}
				return c.failed(r, err), err
			}
			r.remainingAttempts--
			r.writes++
			r.ttl = c.cfg.TTL
			c.step(span, obs, r, d)

		case decideMaxRetries:
			c.step(span, obs, r, d)
			return r.outcome(OutcomeMaxRetriesExceeded), nil

		case decideSuccess:
			c.step(span, obs, r, d)
			return r.outcome(OutcomeSuccess), nil

		case decideTTL:
			c.step(span, obs, r, d)
			return r.outcome(OutcomeTTLExceeded), nil

		default:
			c.step(span, obs, r, d)
			out := r.outcome(OutcomeUnmatched)
			if c.policy.Unmatched == nil {
				return out, fmt.Errorf("%w: %s: %+v", ErrUnhandledStatus, c.cfg.Name, snapshot)
			}
			unmatched := *c.policy.Unmatched
			unmatched.Status = fmt.Sprintf("%+v", snapshot)
			out.Unmatched = &unmatched
			return out, nil
		}

		if err := c.cfg.Sleep(ctx, c.cfg.PollDelay); err != nil {
			return c.cancelled(r, err), nil
		}
	}
}

func (c *Controller[S]) cancelled(r *run[S], cause error) Outcome[S] {
	out := r.outcome(OutcomeCancelled)
	out.cause = cause
	return out
}

func (c *Controller[S]) failed(r *run[S], cause error) Outcome[S] {
	out := r.outcome(OutcomeFailed)
	out.cause = cause
	return out
}

func (c *Controller[S]) step(span trace.Span, obs Observers[S], r *run[S], d decision) {
	step := Step{
		Decision:          d.String(),
		Iteration:         r.polls,
		RemainingAttempts: r.remainingAttempts,
		TTL:               r.ttl,
	}

	span.AddEvent(step.Decision, trace.WithAttributes(
		attribute.Int("iteration", step.Iteration),
		attribute.Int("remaining_attempts", step.RemainingAttempts),
		attribute.Int("ttl", step.TTL),
	))

	log.Debug().
		Str("controller", c.cfg.Name).
		Str("decision", step.Decision).
		Int("iteration", step.Iteration).
		Int("remaining_attempts", step.RemainingAttempts).
		Int("ttl", step.TTL).
		Interface("snapshot", r.snapshot).
		Msg("Reconcile step")

	obs.OnStep(step, r.snapshot)
}

func (c *Controller[S]) logOutcome(out Outcome[S]) {
	event := log.Info()
	if !out.Succeeded() {
		event = log.Warn().AnErr("reason", out.Err())
	}
	event.
		Str("controller", c.cfg.Name).
		Str("outcome", out.Kind.String()).
		Int("polls", out.Polls).
		Int("writes", out.Writes).
		Msg("Reconcile finished")
}
