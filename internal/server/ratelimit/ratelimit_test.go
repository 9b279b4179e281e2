package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  600,
		DefaultWindow: time.Minute,
		// CleanupInterval left zero so tests do not spawn the loop.
		Whitelist:       map[string]bool{},
		Blacklist:       map[string]bool{},
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

func TestBurstThenDeny(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	// POST /audit has burst 5.
	for i := 0; i < 5; i++ {
		allowed, info := l.Allow("10.0.0.1", "/audit", "POST")
		assert.True(t, allowed, "request %d", i)
		assert.Equal(t, 20, info.Limit)
	}

	allowed, info := l.Allow("10.0.0.1", "/audit", "POST")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestBucketsAreIsolatedPerClient(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 5; i++ {
		l.Allow("10.0.0.1", "/audit", "POST")
	}
	allowed, _ := l.Allow("10.0.0.1", "/audit", "POST")
	assert.False(t, allowed)

	allowed, _ = l.Allow("10.0.0.2", "/audit", "POST")
	assert.True(t, allowed)
}

func TestBucketsAreIsolatedPerEndpoint(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 5; i++ {
		l.Allow("10.0.0.1", "/audit", "POST")
	}
	// Exhausting the create budget must not touch the polling budget.
	allowed, info := l.Allow("10.0.0.1", "/audit/status", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 200, info.Limit)
}

func TestTokensRefillOverTime(t *testing.T) {
	b := &bucket{
		capacity:   2,
		refillRate: 10, // 10 tokens/sec
		tokens:     0,
		lastRefill: time.Now().Add(-time.Second),
		lastAccess: time.Now().Add(-time.Second),
	}
	allowed, remaining, _ := b.take(time.Now())
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
}

func TestHealthAndMetricsAreUnlimited(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 2000; i++ {
		allowed, _ := l.Allow("10.0.0.1", "/health", "GET")
		require.True(t, allowed)
	}
	allowed, _ := l.Allow("10.0.0.1", "/metrics", "GET")
	assert.True(t, allowed)
}

func TestWhitelistAndBlacklist(t *testing.T) {
	cfg := testConfig()
	cfg.Whitelist["10.0.0.9"] = true
	cfg.Blacklist["10.0.0.66"] = true
	l := NewLimiter(cfg)
	defer l.Stop()

	for i := 0; i < 50; i++ {
		allowed, _ := l.Allow("10.0.0.9", "/audit", "POST")
		require.True(t, allowed)
	}

	allowed, _ := l.Allow("10.0.0.66", "/audit/status", "GET")
	assert.False(t, allowed)
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		allowed, _ := l.Allow("10.0.0.1", "/audit", "POST")
		require.True(t, allowed)
	}
}

func TestDropIdleBuckets(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	l.Allow("10.0.0.1", "/audit", "POST")
	require.Len(t, l.buckets, 1)

	l.dropIdleBuckets(time.Now().Add(-time.Hour))
	assert.Len(t, l.buckets, 1)

	l.dropIdleBuckets(time.Now().Add(time.Minute))
	assert.Len(t, l.buckets, 0)
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()

	exact := MatchEndpoint("/audit", "POST", configs)
	require.NotNil(t, exact)
	assert.Equal(t, 20, exact.Limit)

	// Prefix patterns end in "/".
	prefix := MatchEndpoint("/admin/runs/abc123/fail", "POST", configs)
	require.NotNil(t, prefix)
	assert.Equal(t, "/admin/", prefix.Path)

	stage := MatchEndpoint("/audit/stages/claim_map", "POST", configs)
	require.NotNil(t, stage)
	assert.Equal(t, 30, stage.Limit)

	// Method must match too.
	assert.Nil(t, MatchEndpoint("/audit", "GET", configs))
	assert.Nil(t, MatchEndpoint("/products/abc", "GET", configs))
}
