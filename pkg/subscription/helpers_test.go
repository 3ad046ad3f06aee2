package subscription_test

import (
	"sync"
	"testing"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/store"
	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
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

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var day0 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *subscription.Service
	store *subscription.DocumentStore
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: day0}
	st := subscription.NewDocumentStore(store.NewMemory())
	return &fixture{
		svc:   subscription.NewService(st, subscription.DefaultCatalog(), subscription.WithClock(clk.Now)),
		store: st,
		clock: clk,
	}
}
