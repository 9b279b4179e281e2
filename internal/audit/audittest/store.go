// Package audittest provides an in-memory Store implementation mirroring the
// SQL semantics closely enough for orchestration and handler tests: the
// one-live-run-per-product constraint, claim ordering, staleness windows, and
// shadow spec fencing.
package audittest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/actualfyi/audit-service/internal/audit"
	"github.com/actualfyi/audit-service/internal/db"
)

var _ audit.Store = (*MemStore)(nil)

// MemStore is a mutex-guarded in-memory Store.
type MemStore struct {
	Mu          sync.Mutex
	Products    map[uuid.UUID]*db.Product
	Runs        map[uuid.UUID]*db.AuditRun
	Shadows     map[uuid.UUID]*db.ShadowSpec
	Assessments map[uuid.UUID][]*db.Assessment
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		Products:    make(map[uuid.UUID]*db.Product),
		Runs:        make(map[uuid.UUID]*db.AuditRun),
		Shadows:     make(map[uuid.UUID]*db.ShadowSpec),
		Assessments: make(map[uuid.UUID][]*db.Assessment),
	}
}

// AddProduct registers a catalog row.
func (m *MemStore) AddProduct(p *db.Product) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.Products[p.ID] = p
}

func copyRun(r *db.AuditRun) *db.AuditRun {
	cp := *r
	cp.StageState = db.NewStageState()
	cp.StageState.Current = r.StageState.Current
	for k, v := range r.StageState.Stages {
		cp.StageState.Stages[k] = v
	}
	return &cp
}

func (m *MemStore) GetProduct(_ context.Context, productID uuid.UUID) (*db.Product, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Products[productID], nil
}

func (m *MemStore) GetProductBySlug(_ context.Context, slug string) (*db.Product, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, p := range m.Products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CreateRun(_ context.Context, productID uuid.UUID, driver string) (*db.AuditRun, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, r := range m.Runs {
		if r.ProductID == productID &&
			(r.Status == db.RunStatusPending || r.Status == db.RunStatusRunning) {
			return nil, db.ErrActiveRunExists
		}
	}
	run := &db.AuditRun{
		ID:         uuid.New(),
		ProductID:  productID,
		Status:     db.RunStatusPending,
		Driver:     driver,
		StageState: db.NewStageState(),
		CreatedAt:  time.Now(),
	}
	m.Runs[run.ID] = run
	return copyRun(run), nil
}

func (m *MemStore) GetRun(_ context.Context, runID uuid.UUID) (*db.AuditRun, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	run, ok := m.Runs[runID]
	if !ok {
		return nil, nil
	}
	return copyRun(run), nil
}

func (m *MemStore) GetActiveRun(_ context.Context, productID uuid.UUID) (*db.AuditRun, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var newest *db.AuditRun
	for _, r := range m.Runs {
		if r.ProductID != productID {
			continue
		}
		if r.Status != db.RunStatusPending && r.Status != db.RunStatusRunning {
			continue
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	if newest == nil {
		return nil, nil
	}
	return copyRun(newest), nil
}

func (m *MemStore) GetLatestDoneRun(_ context.Context, productID, excludeRunID uuid.UUID) (*db.AuditRun, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var newest *db.AuditRun
	for _, r := range m.Runs {
		if r.ProductID != productID || r.ID == excludeRunID || r.Status != db.RunStatusDone {
			continue
		}
		if newest == nil || after(r.FinishedAt, newest.FinishedAt) {
			newest = r
		}
	}
	if newest == nil {
		return nil, nil
	}
	return copyRun(newest), nil
}

func after(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

func (m *MemStore) ClaimNextRun(_ context.Context) (*db.AuditRun, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var pending []*db.AuditRun
	for _, r := range m.Runs {
		if r.Status == db.RunStatusPending && r.Driver != db.DriverManual {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return m.claimLocked(pending[0]), nil
}

func (m *MemStore) ClaimRun(_ context.Context, runID uuid.UUID) (*db.AuditRun, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	run, ok := m.Runs[runID]
	if !ok || run.Status != db.RunStatusPending {
		return nil, nil
	}
	return m.claimLocked(run), nil
}

func (m *MemStore) claimLocked(run *db.AuditRun) *db.AuditRun {
	now := time.Now()
	run.Status = db.RunStatusRunning
	run.LockedAt = &now
	if run.StartedAt == nil {
		run.StartedAt = &now
	}
	run.LastHeartbeat = &now
	run.AttemptCount++
	return copyRun(run)
}

func (m *MemStore) RequeueRun(_ context.Context, runID uuid.UUID) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if run, ok := m.Runs[runID]; ok && run.Status == db.RunStatusPending {
		run.Driver = db.DriverQueue
	}
	return nil
}

func (m *MemStore) Heartbeat(_ context.Context, runID uuid.UUID) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if run, ok := m.Runs[runID]; ok && run.Status == db.RunStatusRunning {
		now := time.Now()
		run.LastHeartbeat = &now
	}
	return nil
}

func (m *MemStore) SaveStageState(_ context.Context, runID uuid.UUID, state db.StageState, progress int) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	run, ok := m.Runs[runID]
	if !ok {
		return nil
	}
	cp := db.NewStageState()
	cp.Current = state.Current
	for k, v := range state.Stages {
		cp.Stages[k] = v
	}
	run.StageState = cp
	run.Progress = progress
	now := time.Now()
	run.LastHeartbeat = &now
	return nil
}

func (m *MemStore) FinishRun(_ context.Context, runID uuid.UUID, status string, errMsg *string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	run, ok := m.Runs[runID]
	if !ok {
		return nil
	}
	now := time.Now()
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &now
	if status == db.RunStatusDone {
		run.Progress = 100
	}
	return nil
}

func (m *MemStore) SupersedeRun(_ context.Context, runID uuid.UUID, message string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	run, ok := m.Runs[runID]
	if !ok {
		return nil
	}
	if run.Status == db.RunStatusPending || run.Status == db.RunStatusRunning {
		now := time.Now()
		run.Status = db.RunStatusError
		run.Error = &message
		run.FinishedAt = &now
	}
	return nil
}

func (m *MemStore) ResetRunForRetry(_ context.Context, runID uuid.UUID) (*db.AuditRun, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	run, ok := m.Runs[runID]
	if !ok || !db.IsTerminalRunStatus(run.Status) {
		return nil, nil
	}
	for _, other := range m.Runs {
		if other.ProductID == run.ProductID && other.ID != run.ID &&
			(other.Status == db.RunStatusPending || other.Status == db.RunStatusRunning) {
			return nil, db.ErrActiveRunExists
		}
	}
	run.Status = db.RunStatusPending
	run.Driver = db.DriverQueue
	run.Progress = 0
	run.Error = nil
	run.LockedAt = nil
	run.FinishedAt = nil
	return copyRun(run), nil
}

func (m *MemStore) ReapStuckRuns(_ context.Context, runningStale, pendingStale time.Duration) ([]uuid.UUID, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	now := time.Now()
	var reaped []uuid.UUID
	for _, run := range m.Runs {
		stale := false
		switch run.Status {
		case db.RunStatusRunning:
			stale = run.LastHeartbeat != nil && now.Sub(*run.LastHeartbeat) > runningStale
		case db.RunStatusPending:
			stale = now.Sub(run.CreatedAt) > pendingStale
		}
		if stale {
			msg := "stale run detected by supervisor"
			run.Status = db.RunStatusError
			run.Error = &msg
			run.FinishedAt = &now
			reaped = append(reaped, run.ID)
		}
	}
	return reaped, nil
}

func (m *MemStore) ListRecentRuns(_ context.Context, productID uuid.UUID, limit int) ([]db.AuditRun, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var runs []db.AuditRun
	for _, r := range m.Runs {
		if r.ProductID == productID {
			runs = append(runs, *copyRun(r))
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *MemStore) GetShadowSpec(_ context.Context, productID uuid.UUID) (*db.ShadowSpec, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	s, ok := m.Shadows[productID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemStore) UpsertShadowSpec(_ context.Context, productID uuid.UUID, version int64, input db.ShadowSpecInput) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	now := time.Now()
	existing, ok := m.Shadows[productID]
	if !ok {
		s := &db.ShadowSpec{
			ID:        uuid.New(),
			ProductID: productID,
			Version:   version,
			CreatedAt: now,
			UpdatedAt: now,
		}
		applyInput(s, input)
		m.Shadows[productID] = s
		return nil
	}
	if existing.Version > version {
		return db.ErrStaleWrite
	}
	applyInput(existing, input)
	existing.Version = version
	existing.UpdatedAt = now
	return nil
}

func applyInput(s *db.ShadowSpec, input db.ShadowSpecInput) {
	if input.ClaimedSpecs != nil {
		s.ClaimedSpecs = input.ClaimedSpecs
	}
	if input.ActualSpecs != nil {
		s.ActualSpecs = input.ActualSpecs
	}
	if input.RedFlags != nil {
		s.RedFlags = input.RedFlags
	}
	if input.TruthScore != nil {
		s.TruthScore = input.TruthScore
	}
	if input.IsVerified != nil {
		s.IsVerified = *input.IsVerified
	}
	if input.Stages != nil {
		s.Stages = input.Stages
	}
	if input.SourceURLs != nil {
		s.SourceURLs = input.SourceURLs
	}
}

func (m *MemStore) CreateAssessment(_ context.Context, runID uuid.UUID, body json.RawMessage, truthIndex *float64) (*db.Assessment, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	a := &db.Assessment{
		ID:         uuid.New(),
		RunID:      runID,
		Body:       body,
		TruthIndex: truthIndex,
		CreatedAt:  time.Now(),
	}
	m.Assessments[runID] = append(m.Assessments[runID], a)
	return a, nil
}

func (m *MemStore) GetAssessmentByRun(_ context.Context, runID uuid.UUID) (*db.Assessment, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	list := m.Assessments[runID]
	if len(list) == 0 {
		return nil, nil
	}
	cp := *list[len(list)-1]
	return &cp, nil
}
