package subscription

import (
	"context"
	"errors"

	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

// Collection is the credential store collection holding subscriptions.
const Collection = "subscriptions"

// Store persists one subscription per tenant. Get returns ErrNotFound for
// tenants that never subscribed.
type Store interface {
	Get(ctx context.Context, tenantID string) (*Subscription, error)
	Save(ctx context.Context, s *Subscription) error
	FindByPlan(ctx context.Context, plan string) ([]*Subscription, error)
}

// DocumentStore keeps subscriptions in the credential store, keyed by tenant.
type DocumentStore struct {
	records *store.Collection[Subscription]
}

func NewDocumentStore(s store.Store) *DocumentStore {
	return &DocumentStore{records: store.NewCollection[Subscription](s, Collection)}
}

func (d *DocumentStore) Get(ctx context.Context, tenantID string) (*Subscription, error) {
	sub, err := d.records.Get(ctx, tenantID)
	if err != nil {
		return nil, storeErr(err)
	}
	return sub, nil
}

func (d *DocumentStore) Save(ctx context.Context, s *Subscription) error {
	return storeErr(d.records.Set(ctx, s.TenantID, s))
}

// FindByPlan lists the subscriptions whose live plan is plan.
func (d *DocumentStore) FindByPlan(ctx context.Context, plan string) ([]*Subscription, error) {
	subs, err := d.records.FindEquals(ctx, "plan", plan, 0)
	if err != nil {
		return nil, storeErr(err)
	}
	return subs, nil
}

func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrInvalidRecord):
		return errors.Join(ErrInvalidRecord, err)
	default:
		return errors.Join(ErrUnavailable, err)
	}
}
