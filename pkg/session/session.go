package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/rbac"
)

// Kind identifies one of the four session kinds.
type Kind string

const (
	KindAuth     Kind = "auth"
	KindCheckout Kind = "checkout"
	KindAdmin    Kind = "admin"
	KindManager  Kind = "manager"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAuth, KindCheckout, KindAdmin, KindManager:
		return true
	}
	return false
}

// PrincipalKind is the kind of principal the session kind authenticates.
func (k Kind) PrincipalKind() PrincipalKind {
	switch k {
	case KindAdmin:
		return PrincipalAdmin
	case KindManager:
		return PrincipalManager
	default:
		return PrincipalUser
	}
}

// PrincipalKind tells which kind of principal owns a session.
type PrincipalKind string

const (
	PrincipalUser    PrincipalKind = "user"
	PrincipalAdmin   PrincipalKind = "admin"
	PrincipalManager PrincipalKind = "manager"
)

// TenantScope is a manager's access to one tenant.
type TenantScope struct {
	TenantID    string                `json:"tenantId"`
	Permissions map[string]rbac.Level `json:"permissions"`
}

// CheckoutStatus tracks a checkout session from start to payment result.
type CheckoutStatus string

const (
	CheckoutPending CheckoutStatus = "pending"
	CheckoutSuccess CheckoutStatus = "success"
	CheckoutFailed  CheckoutStatus = "failed"
)

// Valid reports whether s is pending, success or failed.
func (s CheckoutStatus) Valid() bool {
	return s == CheckoutPending || s == CheckoutSuccess || s == CheckoutFailed
}

// Checkout holds the purchase flow state of a checkout session.
type Checkout struct {
	Plan        string         `json:"plan"`
	TenantID    string         `json:"tenantId,omitempty"`
	IsNewTenant bool           `json:"isNewTenant,omitempty"`
	Mode        string         `json:"mode,omitempty"`
	Status      CheckoutStatus `json:"status"`
	OrderID     string         `json:"orderId,omitempty"`
}

// Session is the server-side session record shared by all kinds. Which
// attributes are set depends on Kind; Validate enforces it.
type Session struct {
	ID            string        `json:"id"`
	Kind          Kind          `json:"kind"`
	PrincipalID   string        `json:"principalId"`
	PrincipalKind PrincipalKind `json:"principalKind"`

	Email        string        `json:"email,omitempty"`
	LoginID      string        `json:"loginId,omitempty"`
	Name         string        `json:"name,omitempty"`
	Role         rbac.Role     `json:"role,omitempty"`
	TenantScopes []TenantScope `json:"tenantScopes,omitempty"`
	Checkout     *Checkout     `json:"checkout,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpired reports whether the session is no longer valid at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Validate checks the record's shape for its kind.
func (s *Session) Validate() error {
	if s.ID == "" || s.PrincipalID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSession)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSession, s.Kind)
	}
	if s.PrincipalKind != s.Kind.PrincipalKind() {
		return fmt.Errorf("%w: %s session with %s principal", ErrInvalidSession, s.Kind, s.PrincipalKind)
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return fmt.Errorf("%w: expires before it was created", ErrInvalidSession)
	}

	switch s.Kind {
	case KindAuth:
		if s.Email == "" {
			return fmt.Errorf("%w: auth session without email", ErrInvalidSession)
		}
	case KindCheckout:
		if s.Email == "" || s.Checkout == nil {
			return fmt.Errorf("%w: checkout session without email or checkout", ErrInvalidSession)
		}
		if s.Checkout.Plan == "" || !s.Checkout.Status.Valid() {
			return fmt.Errorf("%w: checkout plan %q status %q", ErrInvalidSession, s.Checkout.Plan, s.Checkout.Status)
		}
	case KindAdmin:
		if s.LoginID == "" || s.Role == "" {
			return fmt.Errorf("%w: admin session without login id or role", ErrInvalidSession)
		}
	case KindManager:
		if s.LoginID == "" {
			return fmt.Errorf("%w: manager session without login id", ErrInvalidSession)
		}
		for _, scope := range s.TenantScopes {
			if scope.TenantID == "" {
				return fmt.Errorf("%w: tenant scope without tenant", ErrInvalidSession)
			}
			for section, level := range scope.Permissions {
				if !level.Valid() {
					return fmt.Errorf("%w: tenant %s section %s level %q", ErrInvalidSession, scope.TenantID, section, level)
				}
			}
		}
	}
	return nil
}

// Subject returns the rbac subject for admin and manager sessions.
func (s *Session) Subject() (rbac.Subject, error) {
	switch s.Kind {
	case KindAdmin:
		return rbac.AdminSubject(s.Role), nil
	case KindManager:
		tenants := make(map[string]map[string]rbac.Level, len(s.TenantScopes))
		for _, scope := range s.TenantScopes {
			tenants[scope.TenantID] = scope.Permissions
		}
		return rbac.ManagerSubject(tenants), nil
	}
	return rbac.Subject{}, errors.Join(ErrInvalidSession, fmt.Errorf("%s sessions carry no permissions", s.Kind))
}

// Principal is the verified identity a session is opened for.
type Principal struct {
	// ID is the principal id. User kinds default it to Email.
	ID           string
	Email        string
	LoginID      string
	Name         string
	Role         rbac.Role
	TenantScopes []TenantScope
	Checkout     *Checkout
}
