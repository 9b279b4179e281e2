package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/actualfyi/audit-service/internal/audit/stages"
	"github.com/actualfyi/audit-service/internal/audit/validate"
	"github.com/actualfyi/audit-service/internal/db"
	"github.com/actualfyi/audit-service/internal/observability"
)

// StageRequest identifies one stage to run synchronously for a product.
// Stage accepts canonical names and legacy aliases.
type StageRequest struct {
	ProductID string
	Slug      string
	Stage     string
	ForceRedo bool
}

// StageResult is the synchronous stage outcome.
type StageResult struct {
	RunID     string          `json:"run_id"`
	Stage     string          `json:"stage"`
	Status    string          `json:"status"`
	Cached    bool            `json:"cached"`
	ItemCount int             `json:"item_count"`
	Output    json.RawMessage `json:"output,omitempty"`
}

// RunStage executes a single stage in the caller's request, against the
// product's active run (created if absent). A stage already done returns its
// cached output without re-invoking the executor unless ForceRedo is set.
// Prerequisites are enforced: an unrun dependency is a conflict, a failed one
// a failed dependency.
func (s *Service) RunStage(ctx context.Context, req StageRequest) (*StageResult, error) {
	stage, ok := stages.Canonical(req.Stage)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, req.Stage)
	}

	product, err := s.resolveProduct(ctx, AdmitRequest{ProductID: req.ProductID, Slug: req.Slug})
	if err != nil {
		return nil, err
	}

	run, err := s.activeOrNewRun(ctx, product)
	if err != nil {
		return nil, err
	}
	state := run.StageState

	if rec, ok := state.Get(stage); ok && rec.Status == db.StageStatusDone && !req.ForceRedo {
		count := 0
		if rec.ItemCount != nil {
			count = *rec.ItemCount
		}
		return &StageResult{
			RunID:     run.ID.String(),
			Stage:     stage,
			Status:    rec.Status,
			Cached:    true,
			ItemCount: count,
			Output:    rec.Output,
		}, nil
	}

	for _, dep := range stages.Deps(stage) {
		rec, ok := state.Get(dep)
		if !ok || rec.Status == db.StageStatusPending || rec.Status == db.StageStatusRunning {
			return nil, &PrereqError{Stage: stage, Missing: dep}
		}
		if rec.Status == db.StageStatusError || rec.Status == db.StageStatusBlocked {
			return nil, &DependencyError{Stage: stage, Failed: dep}
		}
	}

	exec, err := s.registry.Get(stage)
	if err != nil {
		return nil, err
	}

	state.Current = stage
	state.Merge(stage, db.StageRecord{Status: db.StageStatusRunning, UpdatedAt: time.Now()})
	if err := s.saveState(ctx, run, &state); err != nil {
		return nil, err
	}

	output, execErr := exec.Execute(ctx, &stages.Input{Product: product, State: state})
	if execErr != nil {
		state.Merge(stage, db.StageRecord{
			Status:    db.StageStatusError,
			UpdatedAt: time.Now(),
			Error:     execErr.Error(),
		})
		if err := s.saveState(ctx, run, &state); err != nil {
			log.Printf("[stage] failed to persist failure for run %s: %v", run.ID, err)
		}
		return nil, fmt.Errorf("stage %s failed: %w", stage, execErr)
	}

	res := validate.ForStage(stage)(output)
	if !res.Valid {
		state.Merge(stage, db.StageRecord{
			Status:     db.StageStatusError,
			UpdatedAt:  time.Now(),
			Error:      res.Err,
			RawExcerpt: truncate(string(output), excerptCap),
		})
		s.blockDependents(&state, stage)
		if err := s.saveState(ctx, run, &state); err != nil {
			log.Printf("[stage] failed to persist failure for run %s: %v", run.ID, err)
		}
		return nil, &StageValidationError{Stage: stage, Reason: res.Err}
	}

	itemCount := res.ItemCount
	state.Merge(stage, db.StageRecord{
		Status:    db.StageStatusDone,
		UpdatedAt: time.Now(),
		Output:    output,
		ItemCount: &itemCount,
		TTLDays:   s.cfg.StageTTLDays,
	})
	if err := s.saveState(ctx, run, &state); err != nil {
		return nil, err
	}

	if err := s.persistShadowProgress(ctx, run, product, &state, stage); err != nil {
		if errors.Is(err, db.ErrStaleWrite) {
			observability.StaleWrites.Inc()
		} else {
			log.Printf("[stage] shadow spec write failed for run %s: %v", run.ID, err)
		}
	}

	// Completing the verdict by hand completes the run.
	if stage == stages.Verdict {
		if err := s.finalizeRun(ctx, run, product, &state); err != nil {
			return nil, err
		}
	}

	return &StageResult{
		RunID:     run.ID.String(),
		Stage:     stage,
		Status:    db.StageStatusDone,
		ItemCount: res.ItemCount,
		Output:    output,
	}, nil
}

// activeOrNewRun returns the product's live run, creating a pending one when
// absent. Runs created here are manual: the caller owns stage progression, so
// the dispatcher must not claim them and execute the rest of the pipeline
// behind the caller's back. The unique-violation fallback mirrors Admit.
func (s *Service) activeOrNewRun(ctx context.Context, product *db.Product) (*db.AuditRun, error) {
	run, err := s.store.GetActiveRun(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}
	run, err = s.store.CreateRun(ctx, product.ID, db.DriverManual)
	if err != nil {
		if errors.Is(err, db.ErrActiveRunExists) {
			if winner, qerr := s.store.GetActiveRun(ctx, product.ID); qerr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, err
	}
	return run, nil
}
