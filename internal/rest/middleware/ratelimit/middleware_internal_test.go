package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap/zaptest"
)

func newTestMiddleware(t *testing.T, cfg *config.RateLimit) (*Middleware, *time.Time) {
	t.Helper()

	m := New(cfg, zaptest.NewLogger(t))
	t.Cleanup(m.Close)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestCheckRateLimit(t *testing.T) {
	t.Parallel()

	m, now := newTestMiddleware(t, &config.RateLimit{
		RequestsPerSecond: 1,
		BurstSize:         2,
		StrikeLimit:       3,
		BlockDuration:     60,
	})

	allowed, _, _ := m.checkRateLimit("a")
	assert.True(t, allowed)
	allowed, _, _ = m.checkRateLimit("a")
	assert.True(t, allowed)

	// Burst spent
	allowed, delay, msg := m.checkRateLimit("a")
	assert.False(t, allowed)
	assert.Equal(t, errRateLimit, msg)
	assert.Positive(t, delay)

	// Other clients are independent
	allowed, _, _ = m.checkRateLimit("b")
	assert.True(t, allowed)

	allowed, _, _ = m.checkRateLimit("a")
	assert.False(t, allowed)

	// Third strike blocks
	allowed, retryAfter, msg := m.checkRateLimit("a")
	assert.False(t, allowed)
	assert.Equal(t, errBlocked, msg)
	assert.Equal(t, time.Minute, retryAfter)

	// Tokens refill but the block holds
	*now = now.Add(10 * time.Second)
	allowed, _, msg = m.checkRateLimit("a")
	assert.False(t, allowed)
	assert.Equal(t, errBlocked, msg)

	*now = now.Add(time.Minute)
	allowed, _, _ = m.checkRateLimit("a")
	assert.True(t, allowed)
}

func TestAsRESTMiddleware(t *testing.T) {
	t.Parallel()

	m, _ := newTestMiddleware(t, &config.RateLimit{RequestsPerSecond: 1, BurstSize: 1})

	router := bunrouter.New()
	router.Use(m.AsRESTMiddleware).GET("/", func(w http.ResponseWriter, _ bunrouter.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(headerRetryAt))
}
