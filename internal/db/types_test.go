package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRunStatus(t *testing.T) {
	assert.Equal(t, RunStatusDone, NormalizeRunStatus("complete"))
	assert.Equal(t, RunStatusDone, NormalizeRunStatus("completed"))
	assert.Equal(t, RunStatusError, NormalizeRunStatus("failed"))
	assert.Equal(t, RunStatusError, NormalizeRunStatus("incomplete"))
	assert.Equal(t, RunStatusPending, NormalizeRunStatus("pending"))
	assert.Equal(t, RunStatusTimeout, NormalizeRunStatus("timeout"))
}

func TestIsTerminalRunStatus(t *testing.T) {
	for _, s := range []string{"done", "error", "timeout", "complete", "failed", "incomplete"} {
		assert.True(t, IsTerminalRunStatus(s), s)
	}
	for _, s := range []string{"pending", "running"} {
		assert.False(t, IsTerminalRunStatus(s), s)
	}
}

func TestStageStateMergePreservesOtherStages(t *testing.T) {
	state := NewStageState()
	state.Merge("claim_map", StageRecord{Status: StageStatusDone, Output: json.RawMessage(`{"claims":[]}`)})
	state.Merge("gather_signals", StageRecord{Status: StageStatusRunning})

	rec, ok := state.Get("claim_map")
	require.True(t, ok)
	assert.Equal(t, StageStatusDone, rec.Status)
	assert.NotNil(t, rec.Output)
}

func TestStageStateMergeKeepsPriorOutput(t *testing.T) {
	count := 3
	state := NewStageState()
	state.Merge("verify_facts", StageRecord{
		Status:    StageStatusDone,
		Output:    json.RawMessage(`{"fact_checks":[1,2,3]}`),
		ItemCount: &count,
	})

	// A later status-only merge (e.g. re-marking during a retry) must not
	// discard the earned output.
	state.Merge("verify_facts", StageRecord{Status: StageStatusRunning, UpdatedAt: time.Now()})

	rec, _ := state.Get("verify_facts")
	assert.Equal(t, StageStatusRunning, rec.Status)
	assert.JSONEq(t, `{"fact_checks":[1,2,3]}`, string(rec.Output))
	require.NotNil(t, rec.ItemCount)
	assert.Equal(t, 3, *rec.ItemCount)
}

func TestStageStateDoneCount(t *testing.T) {
	state := NewStageState()
	assert.Equal(t, 0, state.DoneCount())
	state.Merge("a", StageRecord{Status: StageStatusDone})
	state.Merge("b", StageRecord{Status: StageStatusError})
	state.Merge("c", StageRecord{Status: StageStatusDone})
	assert.Equal(t, 2, state.DoneCount())
}

func TestStageStateRoundTrip(t *testing.T) {
	state := NewStageState()
	state.Current = "verdict"
	state.Merge("verdict", StageRecord{Status: StageStatusBlocked, BlockedReason: "verify_facts_invalid"})

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded StageState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "verdict", decoded.Current)
	rec, ok := decoded.Get("verdict")
	require.True(t, ok)
	assert.Equal(t, "verify_facts_invalid", rec.BlockedReason)
}

func TestFenceToken(t *testing.T) {
	created := time.Now().Add(-time.Minute)
	started := time.Now()

	run := &AuditRun{CreatedAt: created}
	assert.Equal(t, created.UnixMilli(), run.FenceToken())

	run.StartedAt = &started
	assert.Equal(t, started.UnixMilli(), run.FenceToken())
}
