package tenantsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

const (
	// TenantCollection holds the tenant documents the mirror is written to.
	TenantCollection = "tenants"
	// SummaryField is the tenant document field holding the mirror.
	SummaryField = "subscription"
)

// Outcome reports what Apply did.
type Outcome int

const (
	Applied Outcome = iota
	// Stale means the mirror already holds a newer view.
	Stale
	// NoTenant means the tenant document does not exist yet.
	NoTenant
)

// Applier merges views into tenant documents.
type Applier struct {
	store  store.Store
	logger *slog.Logger

	mu sync.Mutex
}

// NewApplier merges views into the tenant documents of s. log may be nil.
func NewApplier(s store.Store, log *slog.Logger) *Applier {
	if s == nil {
		panic("tenantsync: nil store")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Applier{store: s, logger: log.With(logger.Component("tenantsync"))}
}

// Apply merges v into the mirror of tenantID. A missing tenant is a logged
// no-op, not an error.
func (a *Applier) Apply(ctx context.Context, tenantID string, v View) (Outcome, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: missing tenant id", ErrInvalidMessage)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	doc, err := a.store.Get(ctx, TenantCollection, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		a.logger.InfoContext(ctx, "tenant not found, mirror skipped", logger.TenantID(tenantID))
		return NoTenant, nil
	}
	if err != nil {
		return 0, errors.Join(ErrUnavailable, err)
	}

	cur, err := readSummary(doc)
	if err != nil {
		// A corrupt mirror is rebuilt from scratch.
		a.logger.WarnContext(ctx, "discarding unreadable mirror", logger.TenantID(tenantID), logger.Error(err))
		cur = Summary{}
	}

	if !v.SourceUpdatedAt.IsZero() && cur.SourceUpdatedAt.After(v.SourceUpdatedAt) {
		a.logger.DebugContext(ctx, "stale view ignored", logger.TenantID(tenantID))
		return Stale, nil
	}

	cur.merge(v)
	next, err := store.ToDocument(cur)
	if err != nil {
		return 0, err
	}
	err = a.store.Update(ctx, TenantCollection, tenantID, store.Document{SummaryField: next})
	if errors.Is(err, store.ErrNotFound) {
		a.logger.InfoContext(ctx, "tenant removed, mirror skipped", logger.TenantID(tenantID))
		return NoTenant, nil
	}
	if err != nil {
		return 0, errors.Join(ErrUnavailable, err)
	}
	return Applied, nil
}

// Mirror returns the summary currently held by tenantID. It returns
// store.ErrNotFound when the tenant does not exist and an empty summary when
// nothing was mirrored yet.
func (a *Applier) Mirror(ctx context.Context, tenantID string) (*Summary, error) {
	doc, err := a.store.Get(ctx, TenantCollection, tenantID)
	if err != nil {
		return nil, err
	}
	s, err := readSummary(doc)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func readSummary(doc store.Document) (Summary, error) {
	var tenant struct {
		Subscription Summary `json:"subscription"`
	}
	if _, ok := doc[SummaryField]; !ok {
		return Summary{}, nil
	}
	if err := store.Decode(store.Document{SummaryField: doc[SummaryField]}, &tenant); err != nil {
		return Summary{}, err
	}
	return tenant.Subscription, nil
}
