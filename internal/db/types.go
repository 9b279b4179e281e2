package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunStatus constants. This is the canonical vocabulary; legacy synonyms
// ("complete", "failed", "incomplete") are normalized on read.
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusError   = "error"
	RunStatusTimeout = "timeout"
)

// Run driver constants: who owns stage progression for a run. Queue runs are
// executed by the dispatcher's worker pool; manual runs are stepped through the
// per-stage endpoint by the caller and are invisible to ClaimNextRun.
const (
	DriverQueue  = "queue"
	DriverManual = "manual"
)

// StageStatus constants for per-stage records inside stage_state.
const (
	StageStatusPending = "pending"
	StageStatusRunning = "running"
	StageStatusDone    = "done"
	StageStatusError   = "error"
	StageStatusBlocked = "blocked"
)

// NormalizeRunStatus maps legacy status strings onto the canonical set.
func NormalizeRunStatus(status string) string {
	switch status {
	case "complete", "completed":
		return RunStatusDone
	case "failed", "incomplete":
		return RunStatusError
	default:
		return status
	}
}

// IsTerminalRunStatus reports whether a run status admits no further transitions.
func IsTerminalRunStatus(status string) bool {
	switch NormalizeRunStatus(status) {
	case RunStatusDone, RunStatusError, RunStatusTimeout:
		return true
	}
	return false
}

// StageRecord is the typed per-stage entry inside a run's stage_state document.
type StageRecord struct {
	Status        string          `json:"status"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Output        json.RawMessage `json:"output,omitempty"`
	ItemCount     *int            `json:"item_count,omitempty"`
	Error         string          `json:"error,omitempty"`
	RawExcerpt    string          `json:"raw_excerpt,omitempty"`
	BlockedReason string          `json:"blocked_reason,omitempty"`
	TTLDays       int             `json:"ttl_days,omitempty"`
}

// StageState is the stage_state jsonb document: the current stage pointer plus
// an append/merge-only map of per-stage records. Entries are never deleted.
type StageState struct {
	Current string                 `json:"current,omitempty"`
	Stages  map[string]StageRecord `json:"stages"`
}

// NewStageState returns an empty stage state skeleton.
func NewStageState() StageState {
	return StageState{Stages: make(map[string]StageRecord)}
}

// Merge applies a single stage record into the document, preserving all other
// entries. Output and diagnostics from a previous record survive unless the new
// record carries its own.
func (s *StageState) Merge(name string, rec StageRecord) {
	if s.Stages == nil {
		s.Stages = make(map[string]StageRecord)
	}
	prev, ok := s.Stages[name]
	if ok {
		if rec.Output == nil {
			rec.Output = prev.Output
		}
		if rec.ItemCount == nil {
			rec.ItemCount = prev.ItemCount
		}
	}
	s.Stages[name] = rec
}

// Get returns the record for a stage, if present.
func (s *StageState) Get(name string) (StageRecord, bool) {
	rec, ok := s.Stages[name]
	return rec, ok
}

// DoneCount returns the number of stages marked done.
func (s *StageState) DoneCount() int {
	n := 0
	for _, rec := range s.Stages {
		if rec.Status == StageStatusDone {
			n++
		}
	}
	return n
}

// AuditRun is one attempt to audit one product.
type AuditRun struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     uuid.UUID  `json:"product_id"`
	Status        string     `json:"status"`
	Driver        string     `json:"driver"`
	Progress      int        `json:"progress"`
	StageState    StageState `json:"stage_state"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	AttemptCount  int        `json:"attempt_count"`
	Error         *string    `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// FenceToken returns the optimistic-concurrency token this run carries into
// shadow spec writes. Later-started runs win ties.
func (r *AuditRun) FenceToken() int64 {
	if r.StartedAt != nil {
		return r.StartedAt.UnixMilli()
	}
	return r.CreatedAt.UnixMilli()
}

// Product is the audited entity. Owned by the catalog process; read-only here.
type Product struct {
	ID             uuid.UUID       `json:"id"`
	Slug           string          `json:"slug"`
	Brand          string          `json:"brand"`
	Model          string          `json:"model"`
	Category       string          `json:"category"`
	TechnicalSpecs json.RawMessage `json:"technical_specs,omitempty"`
	SourceURLs     []string        `json:"source_urls,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ShadowSpec is the durable "latest known good" audit result for a product,
// independent of any single run. Overwrite-on-write, never deleted.
type ShadowSpec struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"product_id"`
	ClaimedSpecs json.RawMessage `json:"claimed_specs,omitempty"`
	ActualSpecs  json.RawMessage `json:"actual_specs,omitempty"`
	RedFlags     json.RawMessage `json:"red_flags,omitempty"`
	TruthScore   *float64        `json:"truth_score,omitempty"`
	IsVerified   bool            `json:"is_verified"`
	Stages       json.RawMessage `json:"stages,omitempty"`
	SourceURLs   []string        `json:"source_urls,omitempty"`
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ShadowSpecInput is the writable projection of a shadow spec. Nil JSON fields
// leave the stored column untouched.
type ShadowSpecInput struct {
	ClaimedSpecs json.RawMessage
	ActualSpecs  json.RawMessage
	RedFlags     json.RawMessage
	TruthScore   *float64
	IsVerified   *bool
	Stages       json.RawMessage
	SourceURLs   []string
}

// Assessment is one verdict row per completed run. Append-only.
type Assessment struct {
	ID         uuid.UUID       `json:"id"`
	RunID      uuid.UUID       `json:"audit_run_id"`
	Body       json.RawMessage `json:"assessment_json"`
	CreatedAt  time.Time       `json:"created_at"`
	TruthIndex *float64        `json:"truth_index,omitempty"`
}
