package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/actualfyi/audit-service/internal/db"
)

// ForceFail moves a live run to error with the given diagnostic. Operator
// escape hatch for runs the staleness policy has not caught yet.
func (s *Service) ForceFail(ctx context.Context, runID uuid.UUID, reason string) (*db.AuditRun, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	if db.IsTerminalRunStatus(run.Status) {
		return nil, fmt.Errorf("run %s is already terminal (%s)", runID, run.Status)
	}
	if reason == "" {
		reason = "force-failed by operator"
	}
	if err := s.store.SupersedeRun(ctx, runID, reason); err != nil {
		return nil, err
	}
	return s.store.GetRun(ctx, runID)
}

// Retry resets a terminal-failed run back to pending and wakes the
// dispatcher. Fails when the product already has another live run.
func (s *Service) Retry(ctx context.Context, runID uuid.UUID) (*db.AuditRun, error) {
	run, err := s.store.ResetRunForRetry(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s is not retryable", runID)
	}
	s.wake()
	return run, nil
}
