// Package ratelimit implements per-client token bucket rate limiting. The
// status endpoint is polled every 1.5s per active audit, so buckets are keyed
// by client+endpoint and polling routes carry their own generous budgets.
package ratelimit

import (
	"sync"
	"time"
)

// bucket is one client+endpoint token bucket. Tokens refill continuously at
// refillRate per second up to capacity.
type bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

func (b *bucket) refillLocked(now time.Time) {
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// take consumes one token if available and reports the bucket status.
func (b *bucket) take(now time.Time) (allowed bool, remaining int, resetTime time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(now)
	b.lastAccess = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		allowed = true
	}

	remaining = int(b.tokens)
	if b.tokens < b.capacity {
		secondsUntilFull := (b.capacity - b.tokens) / b.refillRate
		resetTime = now.Add(time.Duration(secondsUntilFull * float64(time.Second)))
	} else {
		resetTime = now
	}
	return allowed, remaining, resetTime
}

// Info reports the rate limit status for one decision.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// Limiter manages the per-client buckets.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  *Config
	stop    chan struct{}
}

// NewLimiter creates a rate limiter and starts its idle-bucket cleanup loop.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}

	l := &Limiter{
		buckets: make(map[string]*bucket),
		config:  config,
		stop:    make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.cleanupLoop(config.CleanupInterval)
	}
	return l
}

// Allow decides whether a request from clientID may hit the endpoint.
func (l *Limiter) Allow(clientID, endpoint, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{}
	}

	ec := MatchEndpoint(endpoint, method, l.config.EndpointConfigs)
	if ec == nil {
		ec = &EndpointConfig{
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
		}
	}
	if ec.Limit <= 0 {
		// Unlimited endpoint (health, metrics).
		return true, Info{Allowed: true}
	}

	key := clientID + ":" + endpoint + ":" + method
	b := l.getBucket(key, ec)

	allowed, remaining, resetTime := b.take(time.Now())
	info := Info{
		Allowed:   allowed,
		Limit:     ec.Limit,
		Remaining: remaining,
		ResetTime: resetTime,
	}
	if !allowed {
		if retry := time.Until(resetTime); retry > 0 {
			info.RetryAfter = retry
		}
	}
	return allowed, info
}

func (l *Limiter) getBucket(key string, ec *EndpointConfig) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}
	capacity := ec.Burst
	if capacity <= 0 {
		capacity = ec.Limit
	}
	now := time.Now()
	b := &bucket{
		capacity:   float64(capacity),
		refillRate: float64(ec.Limit) / ec.Window.Seconds(),
		tokens:     float64(capacity),
		lastRefill: now,
		lastAccess: now,
	}
	l.buckets[key] = b
	return b
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.dropIdleBuckets(time.Now().Add(-1 * time.Hour))
		case <-l.stop:
			return
		}
	}
}

// dropIdleBuckets removes buckets untouched since the cutoff so long-lived
// processes do not accumulate one bucket per client forever.
func (l *Limiter) dropIdleBuckets(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		b.mu.Lock()
		idle := b.lastAccess.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(l.buckets, key)
		}
	}
}

// Stop terminates the cleanup loop.
func (l *Limiter) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}
