package ssotoken

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

// Usage records the first consumption of a token.
type Usage struct {
	TokenHash      string    `json:"tokenHash"`
	Email          string    `json:"email"`
	Purpose        Purpose   `json:"purpose"`
	UsedAt         time.Time `json:"usedAt"`
	GraceExpiresAt time.Time `json:"graceExpiresAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	// ExpiryBucket is the hour ExpiresAt falls in. StoreLedger purges by it.
	ExpiryBucket string `json:"expiryBucket,omitempty"`
}

func (u *Usage) Validate() error {
	if u.TokenHash == "" {
		return errors.New("token hash is required")
	}
	if u.GraceExpiresAt.Before(u.UsedAt) {
		return errors.New("grace window ends before first use")
	}
	return nil
}

// Ledger persists token usage.
type Ledger interface {
	// Claim stores u if no usage exists for u.TokenHash. When one does, it
	// returns ErrAlreadyClaimed and, if still readable, the stored usage.
	Claim(ctx context.Context, u Usage) (*Usage, error)
}

// UsageCollection is the credential store collection holding token usage.
const UsageCollection = "sso_token_usage"

// StoreLedger keeps usage records in the credential store. The store has no
// native expiry, so a record past ExpiresAt is dropped when its token is
// claimed again and Purge removes the rest by expiry hour.
type StoreLedger struct {
	usage    *store.Collection[Usage]
	lookback time.Duration

	mu     sync.Mutex
	purged time.Time
}

// StoreLedgerOption configures a StoreLedger.
type StoreLedgerOption func(*StoreLedger)

// WithPurgeLookback sets how far back the first Purge looks for expired
// records. Defaults to 24h.
func WithPurgeLookback(d time.Duration) StoreLedgerOption {
	return func(l *StoreLedger) {
		if d > 0 {
			l.lookback = d
		}
	}
}

// NewStoreLedger keeps usage in the UsageCollection of s.
func NewStoreLedger(s store.Store, opts ...StoreLedgerOption) *StoreLedger {
	l := &StoreLedger{
		usage:    store.NewCollection[Usage](s, UsageCollection),
		lookback: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Claim creates the usage record. An earlier record past its ExpiresAt is
// replaced instead of reported.
func (l *StoreLedger) Claim(ctx context.Context, u Usage) (*Usage, error) {
	u.ExpiryBucket = expiryBucket(u.ExpiresAt)
	existing, err := l.claim(ctx, &u)
	if !errors.Is(err, ErrAlreadyClaimed) || existing == nil || u.UsedAt.Before(existing.ExpiresAt) {
		return existing, err
	}

	// The earlier usage outlived its own expiry.
	if err := l.usage.Delete(ctx, u.TokenHash); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return l.claim(ctx, &u)
}

func (l *StoreLedger) claim(ctx context.Context, u *Usage) (*Usage, error) {
	err := l.usage.Create(ctx, u.TokenHash, u)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		return nil, err
	}

	existing, err := l.usage.Get(ctx, u.TokenHash)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrAlreadyClaimed
	case err != nil:
		return nil, err
	}
	return existing, ErrAlreadyClaimed
}

// Purge deletes usage records whose expiry hour has fully elapsed at now and
// returns how many it removed. Each hour is swept once per ledger.
func (l *StoreLedger) Purge(ctx context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	end := now.UTC().Truncate(time.Hour)
	from := l.purged
	if from.IsZero() {
		from = end.Add(-l.lookback).Truncate(time.Hour)
	}

	removed := 0
	for h := from; h.Before(end); h = h.Add(time.Hour) {
		stale, err := l.usage.FindEquals(ctx, "expiryBucket", expiryBucket(h), 0)
		if err != nil {
			return removed, err
		}
		for _, u := range stale {
			err := l.usage.Delete(ctx, u.TokenHash)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return removed, err
			}
			removed++
		}
		l.purged = h.Add(time.Hour)
	}
	return removed, nil
}

func expiryBucket(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format(time.RFC3339)
}
