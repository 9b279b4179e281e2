package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/actualfyi/audit-service/internal/db"
)

// Store is the persistence surface the audit orchestration needs. *db.DB
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	GetProduct(ctx context.Context, productID uuid.UUID) (*db.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*db.Product, error)

	CreateRun(ctx context.Context, productID uuid.UUID, driver string) (*db.AuditRun, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*db.AuditRun, error)
	GetActiveRun(ctx context.Context, productID uuid.UUID) (*db.AuditRun, error)
	GetLatestDoneRun(ctx context.Context, productID, excludeRunID uuid.UUID) (*db.AuditRun, error)
	ClaimNextRun(ctx context.Context) (*db.AuditRun, error)
	ClaimRun(ctx context.Context, runID uuid.UUID) (*db.AuditRun, error)
	RequeueRun(ctx context.Context, runID uuid.UUID) error
	Heartbeat(ctx context.Context, runID uuid.UUID) error
	SaveStageState(ctx context.Context, runID uuid.UUID, state db.StageState, progress int) error
	FinishRun(ctx context.Context, runID uuid.UUID, status string, errMsg *string) error
	SupersedeRun(ctx context.Context, runID uuid.UUID, message string) error
	ResetRunForRetry(ctx context.Context, runID uuid.UUID) (*db.AuditRun, error)
	ReapStuckRuns(ctx context.Context, runningStale, pendingStale time.Duration) ([]uuid.UUID, error)
	ListRecentRuns(ctx context.Context, productID uuid.UUID, limit int) ([]db.AuditRun, error)

	GetShadowSpec(ctx context.Context, productID uuid.UUID) (*db.ShadowSpec, error)
	UpsertShadowSpec(ctx context.Context, productID uuid.UUID, version int64, input db.ShadowSpecInput) error

	CreateAssessment(ctx context.Context, runID uuid.UUID, body json.RawMessage, truthIndex *float64) (*db.Assessment, error)
	GetAssessmentByRun(ctx context.Context, runID uuid.UUID) (*db.Assessment, error)
}
