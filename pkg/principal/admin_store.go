package principal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/rbac"
	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

const AdminCollection = "admins"

// AdminStore persists admins.
type AdminStore struct {
	col       *store.Collection[Admin]
	checkRole func(rbac.Role) error
	now       func() time.Time
}

// AdminOption configures an AdminStore.
type AdminOption func(*AdminStore)

// WithRoleCheck validates roles on Save and SetRole, typically with
// (*rbac.Authorizer).VerifyRole.
func WithRoleCheck(fn func(rbac.Role) error) AdminOption {
	return func(s *AdminStore) { s.checkRole = fn }
}

func WithAdminClock(now func() time.Time) AdminOption {
	return func(s *AdminStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAdminStore returns an AdminStore over st.
func NewAdminStore(st store.Store, opts ...AdminOption) *AdminStore {
	if st == nil {
		panic("principal: nil store")
	}
	s := &AdminStore{col: store.NewCollection[Admin](st, AdminCollection), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the admin with id or ErrNotFound.
func (s *AdminStore) Get(ctx context.Context, id string) (*Admin, error) {
	a, err := s.col.Get(ctx, id)
	return a, storeErr(err)
}

// GetByLoginID returns the admin signing in as loginID or ErrNotFound.
func (s *AdminStore) GetByLoginID(ctx context.Context, loginID string) (*Admin, error) {
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

// Save creates or replaces an admin. A new admin gets an id. Changing an
// owner's role is refused.
func (s *AdminStore) Save(ctx context.Context, a *Admin) error {
	a.LoginID = normalizeLoginID(a.LoginID)
	if err := s.verifyRole(a.Role); err != nil {
		return err
	}
	if other, err := s.GetByLoginID(ctx, a.LoginID); err == nil && other.ID != a.ID {
		return fmt.Errorf("%w: %s", ErrLoginIDTaken, a.LoginID)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if a.ID == "" {
		a.ID = newID()
		a.CreatedAt = s.now().UTC()
	} else {
		cur, err := s.Get(ctx, a.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			if a.CreatedAt.IsZero() {
				a.CreatedAt = s.now().UTC()
			}
		case err != nil:
			return err
		case cur.IsOwner() && !a.IsOwner():
			return fmt.Errorf("%w: cannot demote %s", ErrOwnerImmutable, cur.LoginID)
		}
	}
	return storeErr(s.col.Set(ctx, a.ID, a))
}

// SetRole changes an admin's role. Owners cannot be demoted and nobody is
// promoted to owner this way.
func (s *AdminStore) SetRole(ctx context.Context, id string, role rbac.Role) (*Admin, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsOwner() {
		return nil, fmt.Errorf("%w: cannot demote %s", ErrOwnerImmutable, a.LoginID)
	}
	if role == rbac.RoleOwner {
		return nil, fmt.Errorf("%w: owner is only assigned at creation", ErrInvalidPrincipal)
	}
	if err := s.verifyRole(role); err != nil {
		return nil, err
	}
	a.Role = role
	if err := s.col.Update(ctx, id, store.Document{"role": string(role)}); err != nil {
		return nil, storeErr(err)
	}
	return a, nil
}

// Delete removes an admin. Deleting an owner is refused; deleting a missing
// admin is not an error.
func (s *AdminStore) Delete(ctx context.Context, id string) error {
	a, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if a.IsOwner() {
		return fmt.Errorf("%w: cannot delete %s", ErrOwnerImmutable, a.LoginID)
	}
	return storeErr(s.col.Delete(ctx, id))
}

func (s *AdminStore) touch(ctx context.Context, id string, at time.Time) error {
	return storeErr(s.col.Update(ctx, id, store.Document{"lastLoginAt": at.UTC()}))
}

func (s *AdminStore) verifyRole(role rbac.Role) error {
	if role == "" {
		return fmt.Errorf("%w: missing role", ErrInvalidPrincipal)
	}
	if s.checkRole == nil {
		return nil
	}
	if err := s.checkRole(role); err != nil {
		return errors.Join(ErrInvalidPrincipal, err)
	}
	return nil
}

func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrInvalidRecord):
		return errors.Join(ErrInvalidPrincipal, err)
	}
	return errors.Join(ErrUnavailable, err)
}
