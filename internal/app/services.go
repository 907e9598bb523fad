package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/vibe-io/cdk-extensions-sub001/internal/config"
	"github.com/vibe-io/cdk-extensions-sub001/internal/db"
	"github.com/vibe-io/cdk-extensions-sub001/internal/eventbus"
	"github.com/vibe-io/cdk-extensions-sub001/internal/ledger"
	"github.com/vibe-io/cdk-extensions-sub001/internal/resource"
	"github.com/vibe-io/cdk-extensions-sub001/internal/runner"
	"github.com/vibe-io/cdk-extensions-sub001/internal/telemetry"
)

// Services is a container for all daemon services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Reconciliation
	Runner *runner.Runner
	Runs   *RunService

	// Background services
	Health    *HealthService
	Trigger   *TriggerService
	Retention *RetentionService

	shutdownTracing telemetry.ShutdownFunc
}

// NewServices creates all services with proper dependency injection.
func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	shutdown, err := SetupTracing(cfg)
	if err != nil {
		return nil, err
	}
	s.shutdownTracing = shutdown

	s.DB, s.Ledger, err = OpenLedger(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Runner, err = NewRunner(ctx, cfg, s.Ledger)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Bus = eventbus.NewWithConfig(cfg.Trigger.GetWorkers(), cfg.Trigger.GetQueueSize())
	s.Runs = NewRunService(s.Runner, s.Bus)
	s.Health = NewHealthService(cfg)
	s.Trigger = NewTriggerService(cfg, s.Bus, s.Ledger)
	s.Retention = NewRetentionService(cfg, s.Ledger)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	// Handlers first so the trigger API never publishes into an unhandled bus
	s.Runs.Register(ctx)

	s.Retention.Start(ctx)
	s.Health.Start(ctx)
	s.Trigger.Start(ctx)

	s.Health.SetReady(true)
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	if s.Health != nil {
		s.Health.SetReady(false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	if s.Bus != nil {
		s.Bus.Close(ctx)
	}
	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
		s.shutdownTracing = nil
	}

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.shutdownTracing != nil {
		_ = s.shutdownTracing(context.Background())
		s.shutdownTracing = nil
	}
	if s.DB != nil {
		s.DB.Close()
		s.DB = nil
	}
}

// OpenLedger opens the database and the run ledger on top of it.
func OpenLedger(cfg *config.Config) (*db.DB, *ledger.Ledger, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return database, ledger.New(database.DB), nil
}

// NewRunner creates AWS clients and a runner recording into recorder.
// recorder may be nil.
func NewRunner(ctx context.Context, cfg *config.Config, recorder runner.Recorder) (*runner.Runner, error) {
	clients, err := resource.NewClients(ctx, cfg.AWS.Options())
	if err != nil {
		return nil, err
	}
	builder := resource.NewBuilder(clients, cfg.Reconciler.RateLimitRPS, cfg.Reconciler.Defaults())
	return runner.New(builder, recorder, cfg.Reconciler.Workers), nil
}

// SetupTracing installs the tracer provider when tracing is enabled.
// The returned function is never nil.
func SetupTracing(cfg *config.Config) (telemetry.ShutdownFunc, error) {
	if !cfg.Tracing.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	return telemetry.Setup(telemetry.Options{
		ServiceName:    "resourcectl",
		ServiceVersion: Version,
		Pretty:         cfg.Tracing.Pretty,
	})
}
