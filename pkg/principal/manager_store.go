package principal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/rbac"
	"github.com/yamooSoluto/payment-sub001/pkg/session"
	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

const ManagerCollection = "managers"

// ManagerStore persists managers.
type ManagerStore struct {
	col *store.Collection[Manager]
	now func() time.Time
}

// ManagerOption configures a ManagerStore.
type ManagerOption func(*ManagerStore)

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(s *ManagerStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewManagerStore returns a ManagerStore over st.
func NewManagerStore(st store.Store, opts ...ManagerOption) *ManagerStore {
	if st == nil {
		panic("principal: nil store")
	}
	s := &ManagerStore{col: store.NewCollection[Manager](st, ManagerCollection), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the manager with id or ErrNotFound.
func (s *ManagerStore) Get(ctx context.Context, id string) (*Manager, error) {
	m, err := s.col.Get(ctx, id)
	return m, storeErr(err)
}

// GetByLoginID returns the manager signing in as loginID or ErrNotFound.
func (s *ManagerStore) GetByLoginID(ctx context.Context, loginID string) (*Manager, error) {
	loginID = normalizeLoginID(loginID)
	if loginID == "" {
		return nil, ErrNotFound
	}
	found, err := s.col.FindEquals(ctx, "loginId", loginID, 1)
	if err != nil {
		return nil, storeErr(err)
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

// ListByMaster returns the managers owned by email, ordered by id.
func (s *ManagerStore) ListByMaster(ctx context.Context, email string) ([]*Manager, error) {
	found, err := s.col.FindEquals(ctx, "masterEmail", normalizeEmail(email), 0)
	if err != nil {
		return nil, storeErr(err)
	}
	return found, nil
}

// Save creates or replaces a manager. A new manager gets an id.
func (s *ManagerStore) Save(ctx context.Context, m *Manager) error {
	m.LoginID = normalizeLoginID(m.LoginID)
	m.MasterEmail = normalizeEmail(m.MasterEmail)
	if other, err := s.GetByLoginID(ctx, m.LoginID); err == nil && other.ID != m.ID {
		return fmt.Errorf("%w: %s", ErrLoginIDTaken, m.LoginID)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	return storeErr(s.col.Set(ctx, m.ID, m))
}

// SetActive flips the active flag. Live sessions of a deactivated manager fail
// on their next verification.
func (s *ManagerStore) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return storeErr(s.col.Update(ctx, id, store.Document{"active": active}))
}

// SetPermissions replaces the manager's grant on tenantID. An empty grant
// removes the tenant.
func (s *ManagerStore) SetPermissions(ctx context.Context, id, tenantID string, perms map[string]rbac.Level) (*Manager, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant id", ErrInvalidPrincipal)
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tenants := slices.DeleteFunc(slices.Clone(m.Tenants), func(t TenantAccess) bool {
		return t.TenantID == tenantID
	})
	if len(perms) > 0 {
		tenants = append(tenants, TenantAccess{TenantID: tenantID, Permissions: perms})
		slices.SortFunc(tenants, func(a, b TenantAccess) int { return strings.Compare(a.TenantID, b.TenantID) })
	}
	m.Tenants = tenants
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := s.col.Update(ctx, id, store.Document{"tenants": tenants}); err != nil {
		return nil, storeErr(err)
	}
	return m, nil
}

// Refresh implements session.Refresher. It overwrites the session's grants
// with the manager's current ones.
func (s *ManagerStore) Refresh(ctx context.Context, sess *session.Session) error {
	m, err := s.Get(ctx, sess.PrincipalID)
	if errors.Is(err, ErrNotFound) {
		return session.ErrPrincipalRevoked
	}
	if err != nil {
		return err
	}
	if !m.Active {
		return session.ErrPrincipalRevoked
	}
	sess.LoginID = m.LoginID
	sess.Name = m.Name
	sess.TenantScopes = m.Scopes()
	return nil
}

func (s *ManagerStore) touch(ctx context.Context, id string, at time.Time) error {
	return storeErr(s.col.Update(ctx, id, store.Document{"lastLoginAt": at.UTC()}))
}
