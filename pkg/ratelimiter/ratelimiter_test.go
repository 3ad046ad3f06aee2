package ratelimiter_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yamooSoluto/payment-sub001/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := ratelimiter.New(ratelimiter.Config{Capacity: 2, Interval: 10 * time.Second}, ratelimiter.WithClock(clk.Now))

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, wait)

	ok, _ = l.Allow("b")
	assert.True(t, ok, "buckets are per key")

	clk.Advance(4 * time.Second)
	ok, wait = l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 6*time.Second, wait)

	clk.Advance(7 * time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestLimiter_Middleware(t *testing.T) {
	t.Parallel()
	l := ratelimiter.New(ratelimiter.Config{Capacity: 1, Interval: time.Minute})
	h := l.Middleware(ratelimiter.ByRemoteAddr, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1", "/admin/login").Code)
	limited := call("10.0.0.1", "/admin/login")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2", "/admin/login").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1", "/manager/login").Code)
}

func TestNew_RejectsDisabledConfig(t *testing.T) {
	t.Parallel()
	assert.False(t, ratelimiter.Config{}.Enabled())
	assert.Panics(t, func() { ratelimiter.New(ratelimiter.Config{Capacity: 1}) })
}
