package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/vibe-io/cdk-extensions-sub001/internal/eventbus"
	"github.com/vibe-io/cdk-extensions-sub001/internal/runner"
)

// RunExecutor runs a single request.
type RunExecutor interface {
	RunOne(ctx context.Context, req runner.Request) runner.Result
}

// RunService executes queued run requests on the bus workers.
type RunService struct {
	runner RunExecutor
	bus    *eventbus.Bus
}

// NewRunService creates a new RunService.
func NewRunService(r RunExecutor, bus *eventbus.Bus) *RunService {
	return &RunService{runner: r, bus: bus}
}

// Register subscribes the run handlers. Runs inherit ctx.
func (s *RunService) Register(ctx context.Context) {
	s.bus.Subscribe(eventbus.EventTypeRunRequested, func(e eventbus.Event) {
		req, ok := e.Payload.(runner.Request)
		if !ok {
			log.Error().Str("event_id", e.ID).Msg("Run request event without request payload")
			return
		}

		res := s.runner.RunOne(ctx, req)
		s.bus.Publish(eventbus.Event{Type: eventbus.EventTypeRunFinished, ID: res.RunID, Payload: res})
	})

	s.bus.Subscribe(eventbus.EventTypeRunFinished, func(e eventbus.Event) {
		res, ok := e.Payload.(runner.Result)
		if !ok {
			return
		}
		event := log.Info()
		if !res.Succeeded() {
			event = log.Warn().AnErr("reason", res.Error())
		}
		event.
			Str("run_id", res.RunID).
			Str("target", res.Target).
			Str("action", string(res.Action)).
			Str("outcome", res.Outcome.Kind.String()).
			Dur("duration", res.Duration).
			Msg("Triggered run finished")
	})
}
