package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrActiveRunExists is returned when an insert or retry loses the
// one-live-run-per-product race. Callers re-query and converge on the winner.
var ErrActiveRunExists = errors.New("an active run already exists for this product")

const runColumns = `id, product_id, status, driver, progress, stage_state, last_heartbeat,
	locked_at, attempt_count, error, created_at, started_at, finished_at`

func scanRun(row pgx.Row) (*AuditRun, error) {
	var run AuditRun
	var stateJSON []byte
	err := row.Scan(&run.ID, &run.ProductID, &run.Status, &run.Driver, &run.Progress, &stateJSON,
		&run.LastHeartbeat, &run.LockedAt, &run.AttemptCount, &run.Error,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	run.Status = NormalizeRunStatus(run.Status)
	run.StageState = NewStageState()
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &run.StageState); err != nil {
			return nil, fmt.Errorf("failed to decode stage_state for run %s: %w", run.ID, err)
		}
		if run.StageState.Stages == nil {
			run.StageState.Stages = make(map[string]StageRecord)
		}
	}
	return &run, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateRun inserts a new pending run with an empty stage_state skeleton.
// Queue-driven runs are picked up by the dispatcher; manual runs are stepped by
// the per-stage endpoint and never claimed in the background. Returns
// ErrActiveRunExists when a concurrent request won the admission race.
func (db *DB) CreateRun(ctx context.Context, productID uuid.UUID, driver string) (*AuditRun, error) {
	stateJSON, err := json.Marshal(NewStageState())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stage state: %w", err)
	}

	run, err := scanRun(db.pool.QueryRow(ctx,
		`INSERT INTO audit_runs (product_id, status, driver, progress, stage_state)
		 VALUES ($1, 'pending', $2, 0, $3)
		 RETURNING `+runColumns,
		productID, driver, stateJSON,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrActiveRunExists
		}
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID. Returns (nil, nil) when not found.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*AuditRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM audit_runs WHERE id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetActiveRun returns the most recent pending/running run for a product, or
// (nil, nil) when the product has no live run.
func (db *DB) GetActiveRun(ctx context.Context, productID uuid.UUID) (*AuditRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM audit_runs
		 WHERE product_id = $1 AND status IN ('pending', 'running')
		 ORDER BY created_at DESC
		 LIMIT 1`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active run: %w", err)
	}
	return run, nil
}

// GetLatestDoneRun returns the most recent successful run for a product,
// excluding the given run ID. Used by the read model's last-known-good fallback.
func (db *DB) GetLatestDoneRun(ctx context.Context, productID, excludeRunID uuid.UUID) (*AuditRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM audit_runs
		 WHERE product_id = $1 AND id <> $2 AND status IN ('done', 'complete', 'completed')
		 ORDER BY finished_at DESC NULLS LAST
		 LIMIT 1`, productID, excludeRunID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest done run: %w", err)
	}
	return run, nil
}

// ClaimNextRun atomically claims the oldest pending queue-driven run: status
// moves to running, locked_at and started_at are stamped, attempt_count is
// bumped. Manual runs belong to the per-stage endpoint and are never claimed
// here. Returns (nil, nil) when no claimable run exists. FOR UPDATE SKIP LOCKED
// keeps concurrent dispatchers from fighting over the same row.
func (db *DB) ClaimNextRun(ctx context.Context) (*AuditRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`UPDATE audit_runs SET
			status = 'running',
			locked_at = NOW(),
			started_at = COALESCE(started_at, NOW()),
			last_heartbeat = NOW(),
			attempt_count = attempt_count + 1
		 WHERE id = (
			SELECT id FROM audit_runs
			WHERE status = 'pending' AND driver = 'queue'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+runColumns))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim next run: %w", err)
	}
	return run, nil
}

// ClaimRun claims one specific pending run. Returns (nil, nil) when the run is
// no longer pending (another worker got there first, or it was reaped).
func (db *DB) ClaimRun(ctx context.Context, runID uuid.UUID) (*AuditRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`UPDATE audit_runs SET
			status = 'running',
			locked_at = NOW(),
			started_at = COALESCE(started_at, NOW()),
			last_heartbeat = NOW(),
			attempt_count = attempt_count + 1
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+runColumns, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim run: %w", err)
	}
	return run, nil
}

// RequeueRun hands a pending manual run to the dispatcher. No-op when the run
// has already been claimed or finished.
func (db *DB) RequeueRun(ctx context.Context, runID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE audit_runs SET driver = 'queue' WHERE id = $1 AND status = 'pending'`,
		runID)
	if err != nil {
		return fmt.Errorf("failed to requeue run: %w", err)
	}
	return nil
}

// Heartbeat updates last_heartbeat to prove the worker is alive.
func (db *DB) Heartbeat(ctx context.Context, runID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE audit_runs SET last_heartbeat = NOW() WHERE id = $1 AND status = 'running'`,
		runID)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	return nil
}

// SaveStageState persists the stage_state document, the progress percentage,
// and a heartbeat in one write.
func (db *DB) SaveStageState(ctx context.Context, runID uuid.UUID, state StageState, progress int) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal stage state: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`UPDATE audit_runs
		 SET stage_state = $1, progress = $2, last_heartbeat = NOW()
		 WHERE id = $3`,
		stateJSON, progress, runID)
	if err != nil {
		return fmt.Errorf("failed to save stage state: %w", err)
	}
	return nil
}

// FinishRun moves a run to a terminal status and stamps finished_at.
func (db *DB) FinishRun(ctx context.Context, runID uuid.UUID, status string, errMsg *string) error {
	progressExpr := `progress`
	if status == RunStatusDone {
		progressExpr = `100`
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE audit_runs
		 SET status = $1, error = $2, finished_at = NOW(), progress = `+progressExpr+`
		 WHERE id = $3`,
		status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// SupersedeRun force-fails a run with a diagnostic message. Used by admission
// control and the reaper on runs presumed dead; the original worker, if it is
// somehow still alive, becomes orphaned.
func (db *DB) SupersedeRun(ctx context.Context, runID uuid.UUID, message string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE audit_runs
		 SET status = 'error', error = $1, finished_at = NOW()
		 WHERE id = $2 AND status IN ('pending', 'running')`,
		message, runID)
	if err != nil {
		return fmt.Errorf("failed to supersede run: %w", err)
	}
	return nil
}

// ResetRunForRetry moves a terminal run back to pending so the dispatcher picks
// it up again. The run is handed to the queue even if it was manual before.
// Returns ErrActiveRunExists when the product already has a live run.
func (db *DB) ResetRunForRetry(ctx context.Context, runID uuid.UUID) (*AuditRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`UPDATE audit_runs SET
			status = 'pending',
			driver = 'queue',
			progress = 0,
			error = NULL,
			locked_at = NULL,
			finished_at = NULL
		 WHERE id = $1 AND status IN ('error', 'timeout', 'failed', 'incomplete')
		 RETURNING `+runColumns, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isUniqueViolation(err) {
			return nil, ErrActiveRunExists
		}
		return nil, fmt.Errorf("failed to reset run: %w", err)
	}
	return run, nil
}

// ReapStuckRuns force-fails runs presumed dead: running runs whose heartbeat is
// older than runningStale, and pending runs created more than pendingStale ago.
// Returns the IDs of reaped runs.
func (db *DB) ReapStuckRuns(ctx context.Context, runningStale, pendingStale time.Duration) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx,
		`UPDATE audit_runs
		 SET status = 'error',
		     error = 'stale run detected by supervisor',
		     finished_at = NOW()
		 WHERE (status = 'running' AND last_heartbeat < NOW() - $1::interval)
		    OR (status = 'pending' AND created_at < NOW() - $2::interval)
		 RETURNING id`,
		runningStale.String(), pendingStale.String())
	if err != nil {
		return nil, fmt.Errorf("failed to reap stuck runs: %w", err)
	}
	defer rows.Close()

	var reaped []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reaped run: %w", err)
		}
		reaped = append(reaped, id)
	}
	return reaped, rows.Err()
}

// ListRecentRuns returns the most recent runs for a product, newest first.
func (db *DB) ListRecentRuns(ctx context.Context, productID uuid.UUID, limit int) ([]AuditRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM audit_runs
		 WHERE product_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []AuditRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}
