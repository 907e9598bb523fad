package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/vibe-io/cdk-extensions-sub001/internal/config"
	"github.com/vibe-io/cdk-extensions-sub001/internal/eventbus"
	"github.com/vibe-io/cdk-extensions-sub001/internal/trigger"
)

// TriggerService wraps the trigger HTTP server.
type TriggerService struct {
	cfg    *config.Config
	server *trigger.Server
}

// NewTriggerService creates a new TriggerService.
func NewTriggerService(cfg *config.Config, bus *eventbus.Bus, dedupe trigger.Deduper) *TriggerService {
	server := trigger.NewServer(cfg.Trigger.Host, cfg.Trigger.Port, bus, cfg, dedupe)
	return &TriggerService{
		cfg:    cfg,
		server: server,
	}
}

// Start begins the trigger server if enabled.
func (s *TriggerService) Start(ctx context.Context) {
	if !s.cfg.Trigger.Enabled {
		log.Debug().Msg("Trigger server disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("Trigger server error")
		}
	}()
}
