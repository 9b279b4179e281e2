package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actualfyi/audit-service/internal/audit"
	"github.com/actualfyi/audit-service/internal/audit/stages"
	"github.com/actualfyi/audit-service/internal/db"
)

func TestRunStageCreatesRunWhenAbsent(t *testing.T) {
	execs := happyExecutors()
	svc, store := newTestService(t, execs)
	product := addProduct(store)

	res, err := svc.RunStage(context.Background(), audit.StageRequest{
		Slug:  product.Slug,
		Stage: stages.ClaimMap,
	})
	require.NoError(t, err)
	assert.Equal(t, db.StageStatusDone, res.Status)
	assert.False(t, res.Cached)
	assert.Equal(t, 1, res.ItemCount)
	assert.NotEmpty(t, res.RunID)

	active, err := store.GetActiveRun(context.Background(), product.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, active.ID.String(), res.RunID)
}

func TestRunStageRunInvisibleToDispatcher(t *testing.T) {
	execs := happyExecutors()
	svc, store := newTestService(t, execs)
	product := addProduct(store)
	ctx := context.Background()

	_, err := svc.RunStage(ctx, audit.StageRequest{Slug: product.Slug, Stage: stages.ClaimMap})
	require.NoError(t, err)

	// A hand-driven run belongs to the caller; the worker pool must not pick
	// it up and execute the remaining stages behind the caller's back.
	claimed, err := store.ClaimNextRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed)

	res, err := svc.RunStage(ctx, audit.StageRequest{Slug: product.Slug, Stage: stages.GatherSignals})
	require.NoError(t, err)
	assert.Equal(t, db.StageStatusDone, res.Status)
	assert.Equal(t, 1, execs[stages.ClaimMap].calls)
	assert.Equal(t, 1, execs[stages.GatherSignals].calls)
	assert.Equal(t, 0, execs[stages.Verdict].calls)
}

func TestRunStageReturnsCachedOutput(t *testing.T) {
	execs := happyExecutors()
	svc, store := newTestService(t, execs)
	product := addProduct(store)

	first, err := svc.RunStage(context.Background(), audit.StageRequest{Slug: product.Slug, Stage: stages.ClaimMap})
	require.NoError(t, err)
	second, err := svc.RunStage(context.Background(), audit.StageRequest{Slug: product.Slug, Stage: stages.ClaimMap})
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.JSONEq(t, string(first.Output), string(second.Output))
	assert.Equal(t, 1, execs[stages.ClaimMap].calls)
}

func TestRunStageForceRedoReexecutes(t *testing.T) {
	execs := happyExecutors()
	svc, store := newTestService(t, execs)
	product := addProduct(store)

	_, err := svc.RunStage(context.Background(), audit.StageRequest{Slug: product.Slug, Stage: stages.ClaimMap})
	require.NoError(t, err)
	res, err := svc.RunStage(context.Background(), audit.StageRequest{
		Slug:      product.Slug,
		Stage:     stages.ClaimMap,
		ForceRedo: true,
	})
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, 2, execs[stages.ClaimMap].calls)
}

func TestRunStageResolvesLegacyAlias(t *testing.T) {
	execs := happyExecutors()
	svc, store := newTestService(t, execs)
	product := addProduct(store)

	res, err := svc.RunStage(context.Background(), audit.StageRequest{Slug: product.Slug, Stage: "discover"})
	require.NoError(t, err)
	assert.Equal(t, stages.ClaimMap, res.Stage)
	assert.Equal(t, 1, execs[stages.ClaimMap].calls)
}

func TestRunStageUnknownStage(t *testing.T) {
	svc, store := newTestService(t, happyExecutors())
	product := addProduct(store)

	_, err := svc.RunStage(context.Background(), audit.StageRequest{Slug: product.Slug, Stage: "stage_9"})
	assert.ErrorIs(t, err, audit.ErrUnknownStage)
}

func TestRunStageMissingPrerequisite(t *testing.T) {
	svc, store := newTestService(t, happyExecutors())
	product := addProduct(store)

	_, err := svc.RunStage(context.Background(), audit.StageRequest{Slug: product.Slug, Stage: stages.VerifyFacts})
	var prereq *audit.PrereqError
	require.ErrorAs(t, err, &prereq)
	assert.Equal(t, stages.VerifyFacts, prereq.Stage)
	assert.Equal(t, stages.ClaimMap, prereq.Missing)
}

func TestRunStageFailedDependency(t *testing.T) {
	svc, store := newTestService(t, happyExecutors())
	product := addProduct(store)

	run, err := store.CreateRun(context.Background(), product.ID, db.DriverQueue)
	require.NoError(t, err)

	store.Mu.Lock()
	store.Runs[run.ID].StageState.Merge(stages.ClaimMap, db.StageRecord{
		Status:    db.StageStatusError,
		UpdatedAt: time.Now(),
		Error:     "spec document empty",
	})
	store.Mu.Unlock()

	_, err = svc.RunStage(context.Background(), audit.StageRequest{Slug: product.Slug, Stage: stages.GatherSignals})
	var dep *audit.DependencyError
	require.ErrorAs(t, err, &dep)
	assert.Equal(t, stages.ClaimMap, dep.Failed)
}

func TestRunStageValidationFailure(t *testing.T) {
	execs := happyExecutors()
	execs[stages.ClaimMap].output = json.RawMessage(`{"claims": []}`)
	svc, store := newTestService(t, execs)
	product := addProduct(store)

	_, err := svc.RunStage(context.Background(), audit.StageRequest{Slug: product.Slug, Stage: stages.ClaimMap})
	var vErr *audit.StageValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, stages.ClaimMap, vErr.Stage)

	// The failure is persisted and downstream stages are blocked.
	active, err := store.GetActiveRun(context.Background(), product.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	rec, _ := active.StageState.Get(stages.ClaimMap)
	assert.Equal(t, db.StageStatusError, rec.Status)
	blocked, _ := active.StageState.Get(stages.Verdict)
	assert.Equal(t, db.StageStatusBlocked, blocked.Status)
	assert.Equal(t, "claim_map_invalid", blocked.BlockedReason)
}

func TestRunStageVerdictFinalizesRun(t *testing.T) {
	execs := happyExecutors()
	svc, store := newTestService(t, execs)
	product := addProduct(store)

	ctx := context.Background()
	for _, stage := range stages.Order() {
		_, err := svc.RunStage(ctx, audit.StageRequest{Slug: product.Slug, Stage: stage})
		require.NoError(t, err, stage)
	}

	// Completing the verdict by hand completes the run and publishes results.
	active, err := store.GetActiveRun(ctx, product.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	runs, err := store.ListRecentRuns(ctx, product.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.RunStatusDone, runs[0].Status)

	assessment, err := store.GetAssessmentByRun(ctx, runs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, assessment)

	shadow, err := store.GetShadowSpec(ctx, product.ID)
	require.NoError(t, err)
	require.NotNil(t, shadow)
	assert.True(t, shadow.IsVerified)
}
