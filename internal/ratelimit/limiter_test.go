package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(perMinute, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return newRateLimiter(Config{PerMinute: perMinute, Burst: burst, IdleTTL: time.Minute}, clock.Now), clock
}

func TestBurstThenBlock(t *testing.T) {
	rl, _ := newTestLimiter(60, 5)

	for i := 0; i < 5; i++ {
		result := rl.Allow("ip:1.2.3.4")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 60, result.Limit)
		assert.Equal(t, 4-i, result.Remaining)
	}

	result := rl.Allow("ip:1.2.3.4")
	assert.False(t, result.Allowed)
	assert.Equal(t, time.Second, result.RetryAfter)
}

func TestTokensRefill(t *testing.T) {
	rl, clock := newTestLimiter(60, 1)

	require.True(t, rl.Allow("k").Allowed)
	require.False(t, rl.Allow("k").Allowed)

	clock.Advance(time.Second)
	assert.True(t, rl.Allow("k").Allowed)
}

func TestKeysAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(60, 1)

	assert.True(t, rl.Allow("a").Allowed)
	assert.True(t, rl.Allow("b").Allowed)
	assert.False(t, rl.Allow("a").Allowed)
	assert.Equal(t, 2, rl.Size())
}

func TestRemoveIdle(t *testing.T) {
	rl, clock := newTestLimiter(60, 1)

	rl.Allow("old")
	clock.Advance(2 * time.Minute)
	rl.Allow("fresh")

	assert.Equal(t, 1, rl.removeIdle())
	assert.Equal(t, 1, rl.Size())
	assert.Equal(t, 1, rl.GetStats()["tracked_clients"])
}

func TestIPRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, _ := newTestLimiter(60, 2)

	router := gin.New()
	router.Use(apperrors.ErrorHandler())
	router.Use(rl.IPRateLimitMiddleware())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		last = w
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))
	assert.Equal(t, "60", last.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, last.Body.String(), `"category":"rate_limit"`)
}
