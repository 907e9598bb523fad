package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vibe-io/cdk-extensions-sub001/internal/config"
)

// Pruner deletes ledger entries older than a retention period.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// RetentionService periodically prunes the run ledger.
type RetentionService struct {
	pruner    Pruner
	retention time.Duration
	interval  time.Duration
}

// NewRetentionService creates a new RetentionService.
func NewRetentionService(cfg *config.Config, pruner Pruner) *RetentionService {
	return &RetentionService{
		pruner:    pruner,
		retention: time.Duration(cfg.Ledger.RetentionDays) * 24 * time.Hour,
		interval:  cfg.Ledger.CleanupInterval.Duration(),
	}
}

// Start runs one cleanup immediately and then on every interval.
func (s *RetentionService) Start(ctx context.Context) {
	if s.retention <= 0 || s.interval <= 0 {
		log.Info().Msg("Ledger cleanup is disabled")
		return
	}
	go s.run(ctx)
}

func (s *RetentionService) run(ctx context.Context) {
	s.cleanup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *RetentionService) cleanup(ctx context.Context) {
	deleted, err := s.pruner.DeleteOlderThan(ctx, s.retention)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
		}
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
}
