package session

import (
	"context"

	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

// Store persists sessions of one kind. Get returns store.ErrNotFound for
// unknown ids.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	FindByPrincipal(ctx context.Context, principalID string) ([]*Session, error)
}

// DocumentStore keeps sessions in the "<kind>_sessions" collection of a
// credential store.
type DocumentStore struct {
	sessions *store.Collection[Session]
}

// NewDocumentStore keeps sessions of kind in their own collection of s.
func NewDocumentStore(s store.Store, kind Kind) *DocumentStore {
	return &DocumentStore{sessions: store.NewCollection[Session](s, string(kind)+"_sessions")}
}

func (d *DocumentStore) Create(ctx context.Context, s *Session) error {
	return d.sessions.Create(ctx, s.ID, s)
}

func (d *DocumentStore) Get(ctx context.Context, id string) (*Session, error) {
	return d.sessions.Get(ctx, id)
}

func (d *DocumentStore) Save(ctx context.Context, s *Session) error {
	return d.sessions.Set(ctx, s.ID, s)
}

func (d *DocumentStore) Delete(ctx context.Context, id string) error {
	return d.sessions.Delete(ctx, id)
}

// FindByPrincipal lists the sessions held by principalID.
func (d *DocumentStore) FindByPrincipal(ctx context.Context, principalID string) ([]*Session, error) {
	return d.sessions.FindEquals(ctx, "principalId", principalID, 0)
}
