package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 300*time.Second, cfg.RunTimeout)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 120*time.Second, cfg.RunningStaleAfter)
	assert.Equal(t, 300*time.Second, cfg.PendingStaleAfter)
	assert.Equal(t, 4, cfg.WorkerCount)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/audit")
	t.Setenv("PORT", "9090")
	t.Setenv("AUDIT_RUN_TIMEOUT", "2m")
	t.Setenv("AUDIT_WORKER_COUNT", "8")
	t.Setenv("AUDIT_RUNNING_STALE_AFTER", "90s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost:5432/audit", cfg.DatabaseURL)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 90*time.Second, cfg.RunningStaleAfter)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("AUDIT_RUN_TIMEOUT", "five minutes")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.DatabaseURL = "postgres://localhost/audit"
	require.NoError(t, valid.Validate())

	missing := Defaults()
	assert.Error(t, missing.Validate())

	badHeartbeat := valid
	badHeartbeat.HeartbeatInterval = badHeartbeat.RunningStaleAfter
	assert.Error(t, badHeartbeat.Validate())

	noWorkers := valid
	noWorkers.WorkerCount = 0
	assert.Error(t, noWorkers.Validate())

	noTimeout := valid
	noTimeout.RunTimeout = 0
	assert.Error(t, noTimeout.Validate())
}
