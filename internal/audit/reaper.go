package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/actualfyi/audit-service/internal/observability"
)

// Reap force-fails runs presumed dead: running runs whose heartbeat is older
// than the running-stale threshold, and pending runs older than the
// pending-stale threshold. Safe to run from multiple processes; the UPDATE is
// the arbiter.
func (s *Service) Reap(ctx context.Context) ([]uuid.UUID, error) {
	reaped, err := s.store.ReapStuckRuns(ctx, s.cfg.RunningStaleAfter, s.cfg.PendingStaleAfter)
	if err != nil {
		return nil, err
	}
	if len(reaped) > 0 {
		observability.RunsReaped.Add(float64(len(reaped)))
		for _, id := range reaped {
			log.Printf("[reaper] reaped stale run %s", id)
		}
	}
	return reaped, nil
}

// RunReaper blocks, scanning for stale runs on the configured interval until
// the context is cancelled.
func (s *Service) RunReaper(ctx context.Context) error {
	log.Printf("[reaper] scanning every %s (running stale after %s, pending after %s)",
		s.cfg.ReapInterval, s.cfg.RunningStaleAfter, s.cfg.PendingStaleAfter)

	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Reap(ctx); err != nil {
				log.Printf("[reaper] scan failed: %v", err)
			}
		}
	}
}
