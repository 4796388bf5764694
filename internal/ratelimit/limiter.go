package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	PerMinute       int           // sustained requests per minute per client
	Burst           int           // bucket size
	CleanupInterval time.Duration // how often idle clients are dropped
	IdleTTL         time.Duration // a client idle this long loses its bucket
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		PerMinute:       120,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         10 * time.Minute,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is an in-memory token bucket per client key
type RateLimiter struct {
	config  Config
	now     func() time.Time
	clients map[string]*client
	mu      sync.Mutex
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a limiter and starts its cleanup loop
func NewRateLimiter(config Config) *RateLimiter {
	rl := newRateLimiter(config, time.Now)
	if config.CleanupInterval > 0 {
		go rl.cleanup()
	}
	return rl
}

func newRateLimiter(config Config, now func() time.Time) *RateLimiter {
	if config.PerMinute <= 0 {
		config.PerMinute = DefaultConfig().PerMinute
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultConfig().IdleTTL
	}
	return &RateLimiter{
		config:  config,
		now:     now,
		clients: make(map[string]*client),
		stop:    make(chan struct{}),
	}
}

// Allow takes one token from the bucket of key
func (rl *RateLimiter) Allow(key string) *Result {
	now := rl.now()

	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		perSecond := rate.Limit(float64(rl.config.PerMinute) / 60)
		c = &client{limiter: rate.NewLimiter(perSecond, rl.config.Burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()

	result := &Result{
		Limit:   rl.config.PerMinute,
		ResetAt: now.Add(time.Minute),
	}

	if c.limiter.AllowN(now, 1) {
		result.Allowed = true
		result.Remaining = int(c.limiter.TokensAt(now))
		if result.Remaining < 0 {
			result.Remaining = 0
		}
		return result
	}

	reservation := c.limiter.ReserveN(now, 1)
	result.RetryAfter = reservation.DelayFrom(now)
	reservation.CancelAt(now)
	result.ResetAt = now.Add(result.RetryAfter)
	return result
}

// Size returns the number of tracked clients
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"tracked_clients": rl.Size(),
		"per_minute":      rl.config.PerMinute,
		"burst":           rl.config.Burst,
	}
}

// Close stops the cleanup loop
func (rl *RateLimiter) Close() error {
	rl.once.Do(func() { close(rl.stop) })
	return nil
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := rl.removeIdle(); removed > 0 {
				slog.Debug("Dropped idle rate limit buckets", "count", removed)
			}
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) removeIdle() int {
	cutoff := rl.now().Add(-rl.config.IdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}
