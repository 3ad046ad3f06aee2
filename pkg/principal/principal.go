package principal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yamooSoluto/payment-sub001/pkg/rbac"
	"github.com/yamooSoluto/payment-sub001/pkg/session"
)

// Admin is a console operator. Role owner bypasses permission checks and
// can be neither deleted nor demoted.
type Admin struct {
	ID           string     `json:"id"`
	LoginID      string     `json:"loginId"`
	Name         string     `json:"name"`
	Role         rbac.Role  `json:"role"`
	PasswordHash string     `json:"passwordHash"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (a *Admin) Validate() error {
	switch {
	case a.ID == "":
		return fmt.Errorf("%w: admin without id", ErrInvalidPrincipal)
	case a.LoginID == "":
		return fmt.Errorf("%w: admin %s without login id", ErrInvalidPrincipal, a.ID)
	case a.Role == "":
		return fmt.Errorf("%w: admin %s without role", ErrInvalidPrincipal, a.ID)
	case a.PasswordHash == "":
		return fmt.Errorf("%w: admin %s without password", ErrInvalidPrincipal, a.ID)
	}
	return nil
}

// IsOwner reports whether a holds the owner role.
func (a *Admin) IsOwner() bool { return a.Role == rbac.RoleOwner }

// Principal returns the identity an admin session is opened for.
func (a *Admin) Principal() session.Principal {
	return session.Principal{ID: a.ID, LoginID: a.LoginID, Name: a.Name, Role: a.Role}
}

// TenantAccess is a manager's grant on one tenant.
type TenantAccess struct {
	TenantID    string                `json:"tenantId"`
	Permissions map[string]rbac.Level `json:"permissions"`
}

// Manager operates a subset of the tenants owned by MasterEmail.
type Manager struct {
	ID           string         `json:"managerId"`
	LoginID      string         `json:"loginId"`
	Name         string         `json:"name"`
	MasterEmail  string         `json:"masterEmail"`
	Active       bool           `json:"active"`
	Tenants      []TenantAccess `json:"tenants"`
	PasswordHash string         `json:"passwordHash"`
	LastLoginAt  *time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Validate rejects incomplete managers and duplicate or empty tenant grants.
func (m *Manager) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: manager without id", ErrInvalidPrincipal)
	case m.LoginID == "":
		return fmt.Errorf("%w: manager %s without login id", ErrInvalidPrincipal, m.ID)
	case m.MasterEmail == "":
		return fmt.Errorf("%w: manager %s without master account", ErrInvalidPrincipal, m.ID)
	case m.PasswordHash == "":
		return fmt.Errorf("%w: manager %s without password", ErrInvalidPrincipal, m.ID)
	}
	seen := make(map[string]bool, len(m.Tenants))
	for _, t := range m.Tenants {
		if t.TenantID == "" {
			return fmt.Errorf("%w: manager %s has a grant without tenant", ErrInvalidPrincipal, m.ID)
		}
		if seen[t.TenantID] {
			return fmt.Errorf("%w: manager %s has tenant %s twice", ErrInvalidPrincipal, m.ID, t.TenantID)
		}
		seen[t.TenantID] = true
		for section, level := range t.Permissions {
			if !level.Valid() {
				return fmt.Errorf("%w: manager %s tenant %s section %s level %q",
					ErrInvalidPrincipal, m.ID, t.TenantID, section, level)
			}
		}
	}
	return nil
}

// Scopes converts the manager's grants to session tenant scopes.
func (m *Manager) Scopes() []session.TenantScope {
	out := make([]session.TenantScope, 0, len(m.Tenants))
	for _, t := range m.Tenants {
		perms := make(map[string]rbac.Level, len(t.Permissions))
		for section, level := range t.Permissions {
			perms[section] = level
		}
		out = append(out, session.TenantScope{TenantID: t.TenantID, Permissions: perms})
	}
	return out
}

// Principal returns the identity a manager session is opened for.
func (m *Manager) Principal() session.Principal {
	return session.Principal{ID: m.ID, LoginID: m.LoginID, Name: m.Name, TenantScopes: m.Scopes()}
}

func newID() string { return uuid.NewString() }

func normalizeLoginID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
