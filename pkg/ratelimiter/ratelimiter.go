// Package ratelimiter throttles console login attempts with in-memory token
// buckets keyed per client.
package ratelimiter

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Config is a token bucket: Capacity attempts at once, refilled by one
// token every Interval.
type Config struct {
	Capacity int           `env:"LOGIN_RATE_BURST" envDefault:"10"`
	Interval time.Duration `env:"LOGIN_RATE_INTERVAL" envDefault:"30s"`
}

// Enabled reports whether the config throttles anything.
func (c Config) Enabled() bool { return c.Capacity > 0 && c.Interval > 0 }

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter holds one bucket per key. Full buckets are dropped by Sweep.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the clock used to refill buckets.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a Limiter for cfg. It panics when cfg is not Enabled.
func New(cfg Config, opts ...Option) *Limiter {
	if !cfg.Enabled() {
		panic("ratelimiter: capacity and interval must be positive")
	}
	l := &Limiter{cfg: cfg, now: time.Now, buckets: make(map[string]*bucket)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow takes a token from key's bucket. When the bucket is empty it returns
// false and how long until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.refill(key, now)
	if b.tokens < 1 {
		wait := time.Duration(math.Round((1 - b.tokens) * float64(l.cfg.Interval)))
		return false, wait
	}
	b.tokens--
	return true, 0
}

// Sweep drops buckets that have refilled completely.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key := range l.buckets {
		if l.refill(key, now).tokens >= float64(l.cfg.Capacity) {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) refill(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Capacity), last: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens = math.Min(float64(l.cfg.Capacity), b.tokens+float64(elapsed)/float64(l.cfg.Interval))
		b.last = now
	}
	return b
}

// KeyFunc derives the bucket key of a request.
type KeyFunc func(r *http.Request) string

// ByRemoteAddr keys requests by client address. Run it behind a middleware
// that resolves the real client ip.
func ByRemoteAddr(r *http.Request) string { return r.RemoteAddr }

// Middleware rejects requests over the limit. onLimited writes the response;
// Retry-After is already set when it runs.
func (l *Limiter) Middleware(key KeyFunc, onLimited http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Allow(r.URL.Path + "|" + key(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				onLimited(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
