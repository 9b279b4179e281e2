package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/actualfyi/audit-service/internal/audit/stages"
	"github.com/actualfyi/audit-service/internal/audit/validate"
	"github.com/actualfyi/audit-service/internal/db"
	"github.com/actualfyi/audit-service/internal/observability"
	"github.com/actualfyi/audit-service/internal/truth"
)

// excerptCap limits how much raw output is preserved on a failed stage for
// diagnostics.
const excerptCap = 1500

// errRunTerminal signals the stage loop stopped because the run was already
// moved to a terminal status; the caller must not finish it again.
var errRunTerminal = errors.New("run reached terminal status")

// RunOne drives a claimed run through the stage pipeline to a terminal
// status. The run must already be in status running (claimed). A heartbeat
// goroutine proves liveness for the whole invocation; the entire run is
// bounded by the configured wall-clock timeout, after which the run is marked
// timeout rather than left running forever.
func (s *Service) RunOne(ctx context.Context, run *db.AuditRun) {
	observability.RunsStarted.Inc()
	log.Printf("[runner] run %s starting (product=%s attempt=%d)", run.ID, run.ProductID, run.AttemptCount)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := s.store.Heartbeat(gctx, run.ID); err != nil {
					log.Printf("[runner] heartbeat failed for run %s: %v", run.ID, err)
				}
			}
		}
	})

	var stageErr error
	g.Go(func() error {
		defer cancel()
		stageErr = s.executeStages(gctx, run)
		return nil
	})

	_ = g.Wait()

	// Terminal writes happen on a fresh context: the run context is usually
	// dead by the time we get here on the timeout path.
	finCtx, finCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer finCancel()

	switch {
	case stageErr == nil:
		log.Printf("[runner] run %s done", run.ID)
		observability.RunsFinished.WithLabelValues(db.RunStatusDone).Inc()
	case errors.Is(stageErr, errRunTerminal):
		observability.RunsFinished.WithLabelValues(db.RunStatusError).Inc()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		msg := fmt.Sprintf("run exceeded %s wall-clock limit", s.cfg.RunTimeout)
		log.Printf("[runner] run %s timed out", run.ID)
		if err := s.store.FinishRun(finCtx, run.ID, db.RunStatusTimeout, &msg); err != nil {
			log.Printf("[runner] failed to mark run %s timeout: %v", run.ID, err)
		}
		observability.RunsFinished.WithLabelValues(db.RunStatusTimeout).Inc()
	default:
		msg := stageErr.Error()
		log.Printf("[runner] run %s failed: %v", run.ID, stageErr)
		if err := s.store.FinishRun(finCtx, run.ID, db.RunStatusError, &msg); err != nil {
			log.Printf("[runner] failed to mark run %s error: %v", run.ID, err)
		}
		observability.RunsFinished.WithLabelValues(db.RunStatusError).Inc()
	}
}

// executeStages runs every stage in order, persisting after each one. A nil
// return means the run was finalized as done; errRunTerminal means a
// validation failure already moved it to error; any other error is an
// unhandled failure the caller must record.
func (s *Service) executeStages(ctx context.Context, run *db.AuditRun) error {
	product, err := s.store.GetProduct(ctx, run.ProductID)
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}
	if product == nil {
		return fmt.Errorf("product %s no longer exists", run.ProductID)
	}

	state := run.StageState

	for _, stage := range stages.Order() {
		// Resume support: stages already done from a prior attempt are kept.
		if rec, ok := state.Get(stage); ok && rec.Status == db.StageStatusDone {
			continue
		}

		if err := s.runStage(ctx, run, product, &state, stage); err != nil {
			return err
		}
	}

	if err := s.finalizeRun(ctx, run, product, &state); err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	return nil
}

// runStage executes and validates one stage, persisting the outcome. On
// validation failure it blocks all dependents, moves the run terminal, and
// returns errRunTerminal.
func (s *Service) runStage(ctx context.Context, run *db.AuditRun, product *db.Product, state *db.StageState, stage string) error {
	state.Current = stage
	state.Merge(stage, db.StageRecord{Status: db.StageStatusRunning, UpdatedAt: time.Now()})
	if err := s.saveState(ctx, run, state); err != nil {
		return err
	}

	exec, err := s.registry.Get(stage)
	if err != nil {
		return err
	}

	start := time.Now()
	output, execErr := exec.Execute(ctx, &stages.Input{Product: product, State: *state})
	if execErr != nil {
		observability.StageDuration.WithLabelValues(stage, "error").Observe(time.Since(start).Seconds())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		state.Merge(stage, db.StageRecord{
			Status:    db.StageStatusError,
			UpdatedAt: time.Now(),
			Error:     execErr.Error(),
		})
		s.blockDependents(state, stage)
		if err := s.saveState(ctx, run, state); err != nil {
			log.Printf("[runner] failed to persist stage failure for run %s: %v", run.ID, err)
		}
		return fmt.Errorf("stage %s failed: %w", stage, execErr)
	}

	res := validate.ForStage(stage)(output)
	if !res.Valid {
		observability.StageDuration.WithLabelValues(stage, "invalid").Observe(time.Since(start).Seconds())
		// Never substitute fabricated data for a stage that failed
		// validation; preserve a truncated excerpt for diagnostics.
		state.Merge(stage, db.StageRecord{
			Status:     db.StageStatusError,
			UpdatedAt:  time.Now(),
			Error:      res.Err,
			RawExcerpt: truncate(string(output), excerptCap),
		})
		s.blockDependents(state, stage)
		if err := s.saveState(ctx, run, state); err != nil {
			log.Printf("[runner] failed to persist stage failure for run %s: %v", run.ID, err)
		}
		msg := fmt.Sprintf("stage %s failed validation: %s", stage, res.Err)
		if err := s.store.FinishRun(ctx, run.ID, db.RunStatusError, &msg); err != nil {
			log.Printf("[runner] failed to mark run %s error: %v", run.ID, err)
		}
		return errRunTerminal
	}

	observability.StageDuration.WithLabelValues(stage, "done").Observe(time.Since(start).Seconds())
	itemCount := res.ItemCount
	state.Merge(stage, db.StageRecord{
		Status:    db.StageStatusDone,
		UpdatedAt: time.Now(),
		Output:    output,
		ItemCount: &itemCount,
		TTLDays:   s.cfg.StageTTLDays,
	})
	if err := s.saveState(ctx, run, state); err != nil {
		return err
	}

	// Progressive persistence: the shadow spec mirror advances with every
	// completed stage so a later crash loses nothing already earned.
	if err := s.persistShadowProgress(ctx, run, product, state, stage); err != nil {
		if errors.Is(err, db.ErrStaleWrite) {
			observability.StaleWrites.Inc()
			log.Printf("[runner] run %s fenced out of shadow spec for product %s", run.ID, product.ID)
		} else {
			log.Printf("[runner] shadow spec write failed for run %s: %v", run.ID, err)
		}
	}
	return nil
}

// blockDependents marks every stage after the failed one blocked with a
// reason naming the failure.
func (s *Service) blockDependents(state *db.StageState, failed string) {
	reason := failed + "_invalid"
	after := false
	for _, stage := range stages.Order() {
		if stage == failed {
			after = true
			continue
		}
		if !after {
			continue
		}
		state.Merge(stage, db.StageRecord{
			Status:        db.StageStatusBlocked,
			UpdatedAt:     time.Now(),
			BlockedReason: reason,
		})
	}
}

func (s *Service) saveState(ctx context.Context, run *db.AuditRun, state *db.StageState) error {
	progress := truth.Progress(state.DoneCount(), stages.Total())
	if err := s.store.SaveStageState(ctx, run.ID, *state, progress); err != nil {
		return fmt.Errorf("failed to save stage state: %w", err)
	}
	return nil
}

// persistShadowProgress writes the per-stage contribution into the shadow
// spec, fenced by the run's version token. claim_map feeds claimed_specs;
// every stage refreshes the stages mirror.
func (s *Service) persistShadowProgress(ctx context.Context, run *db.AuditRun, product *db.Product, state *db.StageState, stage string) error {
	stagesDoc, err := json.Marshal(state.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages mirror: %w", err)
	}

	input := db.ShadowSpecInput{
		Stages:     stagesDoc,
		SourceURLs: product.SourceURLs,
	}
	if stage == stages.ClaimMap {
		if rec, ok := state.Get(stages.ClaimMap); ok {
			input.ClaimedSpecs = rec.Output
		}
	}
	return s.store.UpsertShadowSpec(ctx, product.ID, run.FenceToken(), input)
}

// finalizeRun flattens the completed pipeline into the shadow spec, appends
// the assessment row, and marks the run done. A fenced-out shadow write does
// not fail the run: the run's own data is intact, it just is not canonical.
func (s *Service) finalizeRun(ctx context.Context, run *db.AuditRun, product *db.Product, state *db.StageState) error {
	verdictRec, ok := state.Get(stages.Verdict)
	if !ok || verdictRec.Output == nil {
		return fmt.Errorf("verdict output missing at finalization")
	}
	normalizeRec, _ := state.Get(stages.Normalize)
	claimRec, _ := state.Get(stages.ClaimMap)

	var verdict stages.VerdictOutput
	if err := json.Unmarshal(verdictRec.Output, &verdict); err != nil {
		return fmt.Errorf("verdict output unreadable: %w", err)
	}

	var redFlags json.RawMessage
	var actualSpecs json.RawMessage
	if normalizeRec.Output != nil {
		var norm stages.NormalizeOutput
		if err := json.Unmarshal(normalizeRec.Output, &norm); err == nil {
			if flags, err := json.Marshal(discrepanciesOf(norm.Checks)); err == nil {
				redFlags = flags
			}
			actualSpecs = normalizeRec.Output
		}
	}

	stagesDoc, err := json.Marshal(state.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages mirror: %w", err)
	}

	verified := true
	score := verdict.TruthIndex
	input := db.ShadowSpecInput{
		ClaimedSpecs: claimRec.Output,
		ActualSpecs:  actualSpecs,
		RedFlags:     redFlags,
		TruthScore:   &score,
		IsVerified:   &verified,
		Stages:       stagesDoc,
		SourceURLs:   product.SourceURLs,
	}
	if err := s.store.UpsertShadowSpec(ctx, product.ID, run.FenceToken(), input); err != nil {
		if errors.Is(err, db.ErrStaleWrite) {
			observability.StaleWrites.Inc()
			log.Printf("[runner] run %s finished late; canonical result kept from a newer run", run.ID)
		} else {
			return err
		}
	}

	if _, err := s.store.CreateAssessment(ctx, run.ID, verdictRec.Output, &score); err != nil {
		return err
	}

	return s.store.FinishRun(ctx, run.ID, db.RunStatusDone, nil)
}

// discrepanciesOf filters normalized checks down to confirmed discrepancies.
func discrepanciesOf(checks []truth.NormalizedCheck) []truth.NormalizedCheck {
	out := make([]truth.NormalizedCheck, 0)
	for _, c := range checks {
		if c.Verdict == truth.VerdictDiscrepancy {
			out = append(out, c)
		}
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
