package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateAssessment appends the verdict row for a completed run.
func (db *DB) CreateAssessment(ctx context.Context, runID uuid.UUID, body json.RawMessage, truthIndex *float64) (*Assessment, error) {
	var a Assessment
	err := db.pool.QueryRow(ctx,
		`INSERT INTO audit_assessments (audit_run_id, assessment_json, truth_index)
		 VALUES ($1, $2, $3)
		 RETURNING id, audit_run_id, assessment_json, truth_index, created_at`,
		runID, body, truthIndex,
	).Scan(&a.ID, &a.RunID, &a.Body, &a.TruthIndex, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create assessment: %w", err)
	}
	return &a, nil
}

// GetAssessmentByRun retrieves the most recent assessment for a run, or
// (nil, nil) when none exists.
func (db *DB) GetAssessmentByRun(ctx context.Context, runID uuid.UUID) (*Assessment, error) {
	var a Assessment
	err := db.pool.QueryRow(ctx,
		`SELECT id, audit_run_id, assessment_json, truth_index, created_at
		 FROM audit_assessments
		 WHERE audit_run_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, runID,
	).Scan(&a.ID, &a.RunID, &a.Body, &a.TruthIndex, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return &a, nil
}
