package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/actualfyi/audit-service/internal/db"
)

// Data-source labels reported alongside status responses.
const (
	DataSourceCurrentRun    = "current_run"
	DataSourceLastKnownGood = "last_known_good"
	DataSourceNone          = "none"
)

// RunSummary is the raw truth about one run.
type RunSummary struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Progress int     `json:"progress"`
	Error    *string `json:"error,omitempty"`
}

// AuditPayload is the display data composed from the shadow spec and the
// display run's assessment.
type AuditPayload struct {
	TruthScore   *float64        `json:"truth_score,omitempty"`
	IsVerified   bool            `json:"is_verified"`
	ClaimedSpecs json.RawMessage `json:"claimed_specs,omitempty"`
	ActualSpecs  json.RawMessage `json:"actual_specs,omitempty"`
	RedFlags     json.RawMessage `json:"red_flags,omitempty"`
	Assessment   json.RawMessage `json:"assessment,omitempty"`
}

// StatusResponse is the polling read model: the requested run's raw status
// plus the most useful display data available right now. ActiveRun is the
// truth about what is happening; DataSource records where the display payload
// came from.
type StatusResponse struct {
	OK           bool                      `json:"ok"`
	Status       string                    `json:"status"`
	Progress     int                       `json:"progress"`
	Error        *string                   `json:"error,omitempty"`
	ActiveRun    RunSummary                `json:"active_run"`
	DisplayRunID *string                   `json:"display_run_id,omitempty"`
	DataSource   string                    `json:"data_source"`
	Audit        *AuditPayload             `json:"audit,omitempty"`
	Stages       map[string]db.StageRecord `json:"stages,omitempty"`
}

// Status composes the read model for a run id: the run itself, and when it is
// not (or not usefully) done, the most recent other successful run for the
// same product as the display payload. Last known good instantly, even while
// a refresh audit is in flight.
func (s *Service) Status(ctx context.Context, runID uuid.UUID) (*StatusResponse, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}

	resp := &StatusResponse{
		OK:       true,
		Status:   run.Status,
		Progress: run.Progress,
		Error:    run.Error,
		ActiveRun: RunSummary{
			ID:       run.ID.String(),
			Status:   run.Status,
			Progress: run.Progress,
			Error:    run.Error,
		},
		DataSource: DataSourceNone,
	}

	// The current run's assessment, the fallback run, and the product's
	// shadow spec are independent lookups.
	var (
		assessment *db.Assessment
		fallback   *db.AuditRun
		shadow     *db.ShadowSpec
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assessment, err = s.store.GetAssessmentByRun(gctx, run.ID)
		return err
	})
	g.Go(func() error {
		var err error
		fallback, err = s.store.GetLatestDoneRun(gctx, run.ProductID, run.ID)
		return err
	})
	g.Go(func() error {
		var err error
		shadow, err = s.store.GetShadowSpec(gctx, run.ProductID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	display := run
	displayAssessment := assessment
	// A nominally-done run with no assessment attached is a persistence edge
	// case; it falls back to last known good the same as a failed run.
	if run.Status != db.RunStatusDone || assessment == nil {
		if fallback != nil {
			display = fallback
			displayAssessment, err = s.store.GetAssessmentByRun(ctx, fallback.ID)
			if err != nil {
				return nil, err
			}
			resp.DataSource = DataSourceLastKnownGood
		} else {
			display = nil
		}
	} else {
		resp.DataSource = DataSourceCurrentRun
	}

	if display != nil {
		id := display.ID.String()
		resp.DisplayRunID = &id
		resp.Stages = display.StageState.Stages

		payload := &AuditPayload{}
		if shadow != nil {
			payload.TruthScore = shadow.TruthScore
			payload.IsVerified = shadow.IsVerified
			payload.ClaimedSpecs = shadow.ClaimedSpecs
			payload.ActualSpecs = shadow.ActualSpecs
			payload.RedFlags = shadow.RedFlags
		}
		if displayAssessment != nil {
			payload.Assessment = displayAssessment.Body
		}
		resp.Audit = payload
	}

	return resp, nil
}
