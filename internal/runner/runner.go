// Package runner executes reconcile runs for configured targets.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vibe-io/cdk-extensions-sub001/internal/ledger"
	"github.com/vibe-io/cdk-extensions-sub001/internal/metrics"
	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
	"github.com/vibe-io/cdk-extensions-sub001/internal/resource"
)

// Factory builds the controller for a target and action.
type Factory interface {
	Build(t resource.Target, a resource.Action) (*resource.Controller, error)
}

// Recorder persists run events.
type Recorder interface {
	Append(ctx context.Context, e ledger.Entry) error
}

// Request asks for one target to be driven to an action's end state.
type Request struct {
	Target resource.Target
	Action resource.Action

	// RunID is generated when empty.
	RunID string
	// IdempotencyKey is stored with the run; see ledger.HasSucceeded.
	IdempotencyKey string
}

// Result is the outcome of one request.
type Result struct {
	RunID    string
	Target   string
	Kind     resource.Kind
	Action   resource.Action
	Outcome  reconcile.Outcome[resource.Snapshot]
	Duration time.Duration

	// Err is set when the run could not be built or a capability call failed.
	Err error
}

// Succeeded reports whether the target converged.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.Outcome.Succeeded()
}

// Error returns the reason the run did not succeed, or nil.
func (r Result) Error() error {
	if r.Err != nil {
		return r.Err
	}
	return r.Outcome.Err()
}

// Runner executes requests with bounded concurrency.
type Runner struct {
	factory  Factory
	recorder Recorder
	workers  int
}

// New creates a Runner. recorder may be nil.
func New(factory Factory, recorder Recorder, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{factory: factory, recorder: recorder, workers: workers}
}

// Run executes all requests and returns results in request order.
// A failing run does not stop the others.
func (r *Runner) Run(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = r.RunOne(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// RunOne executes a single request.
func (r *Runner) RunOne(ctx context.Context, req Request) Result {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	res := Result{
		RunID:  req.RunID,
		Target: req.Target.Name,
		Kind:   req.Target.Kind,
		Action: req.Action,
	}

	logger := log.With().
		Str("run_id", req.RunID).
		Str("target", req.Target.Name).
		Str("action", string(req.Action)).
		Logger()

	c, err := r.factory.Build(req.Target, req.Action)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build controller")
		res.Err = err
		res.Outcome.Kind = reconcile.OutcomeFailed
		r.record(ctx, req, ledger.EventRunFailed, res)
		return res
	}

	logger.Info().Str("kind", string(req.Target.Kind)).Msg("Run started")
	r.record(ctx, req, ledger.EventRunStarted, res)

	start := time.Now()
	out, err := c.Run(ctx, metrics.NewObserver(req.Target.Kind, req.Action))
	res.Outcome = out
	res.Duration = time.Since(start)
	res.Err = err

	event := ledger.EventRunSucceeded
	if !res.Succeeded() {
		event = ledger.EventRunFailed
	}
	r.record(ctx, req, event, res)

	return res
}

func (r *Runner) record(ctx context.Context, req Request, event ledger.EventType, res Result) {
	if r.recorder == nil {
		return
	}

	entry := ledger.Entry{
		RunID:          req.RunID,
		EventType:      event,
		Target:         req.Target.Name,
		Kind:           string(req.Target.Kind),
		Action:         string(req.Action),
		IdempotencyKey: req.IdempotencyKey,
	}
	if event != ledger.EventRunStarted {
		entry.Outcome = res.Outcome.Kind.String()
		entry.Payload = map[string]any{
			"polls":       res.Outcome.Polls,
			"writes":      res.Outcome.Writes,
			"status":      res.Outcome.Snapshot.Status,
			"duration_ms": res.Duration.Milliseconds(),
		}
		if err := res.Error(); err != nil {
			entry.Payload["error"] = err.Error()
		}
	}

	// Record even when the run was cancelled.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.recorder.Append(writeCtx, entry); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("run_id", req.RunID).Msg("Failed to record run event")
	}
}
