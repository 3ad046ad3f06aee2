package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

const maxInheritanceDepth = 8

// SubjectKind distinguishes the principals the Authorizer understands.
type SubjectKind string

const (
	SubjectAdmin   SubjectKind = "admin"
	SubjectManager SubjectKind = "manager"
)

// Subject is the principal an action is authorized for.
type Subject struct {
	Kind SubjectKind
	// Role is set for admins.
	Role Role
	// Tenants is set for managers: tenant id to section levels.
	Tenants map[string]map[string]Level
}

// AdminSubject is an admin acting with role.
func AdminSubject(role Role) Subject {
	return Subject{Kind: SubjectAdmin, Role: role}
}

// ManagerSubject is a manager acting with its per-tenant section levels.
func ManagerSubject(tenants map[string]map[string]Level) Subject {
	return Subject{Kind: SubjectManager, Tenants: tenants}
}

// Authorizer evaluates permissions for admins and managers.
type Authorizer struct {
	// levels holds each role's effective level per section, inheritance applied.
	levels map[Role]map[string]Level
	roles  []Role
}

// NewAuthorizer loads the role table from source and resolves inheritance.
func NewAuthorizer(ctx context.Context, source RoleSource) (*Authorizer, error) {
	defs, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := defs[RoleOwner]; ok {
		return nil, fmt.Errorf("%w: owner is evaluated before the role table and cannot be defined", ErrInvalidRole)
	}

	a := &Authorizer{levels: make(map[Role]map[string]Level, len(defs))}
	depths := make(map[Role]int, len(defs))
	for role := range defs {
		levels := make(map[string]Level)
		depth, err := collect(role, defs, levels, nil)
		if err != nil {
			return nil, err
		}
		a.levels[role] = levels
		depths[role] = depth
		a.roles = append(a.roles, role)
	}
	slices.SortFunc(a.roles, func(x, y Role) int {
		if d := depths[x] - depths[y]; d != 0 {
			return d
		}
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
		return 0
	})
	return a, nil
}

// collect merges role's grants and those of its ancestors into levels and
// returns the role's inheritance depth.
func collect(role Role, defs map[Role]RoleDefinition, levels map[string]Level, path []Role) (int, error) {
	if slices.Contains(path, role) {
		return 0, fmt.Errorf("%w: %v -> %s", ErrCircularInheritance, path, role)
	}
	if len(path) > maxInheritanceDepth {
		return 0, fmt.Errorf("%w: depth exceeds %d", ErrCircularInheritance, maxInheritanceDepth)
	}
	def, ok := defs[role]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	for _, g := range def.Grants {
		p, err := ParsePermission(g)
		if err != nil {
			return 0, fmt.Errorf("role %s: %w", role, err)
		}
		levels[p.Section] = maxLevel(levels[p.Section], p.Level)
	}

	depth := 0
	for _, parent := range def.Inherits {
		d, err := collect(parent, defs, levels, append(path, role))
		if err != nil {
			return 0, err
		}
		depth = max(depth, d+1)
	}
	return depth, nil
}

// Authorize reports whether sub may perform an action needing perm on
// tenantID. Admin authorization ignores tenantID.
func (a *Authorizer) Authorize(sub Subject, tenantID string, perm Permission) error {
	if sub.Kind == SubjectAdmin && sub.Role == RoleOwner {
		return nil
	}

	switch sub.Kind {
	case SubjectAdmin:
		return a.Can(sub.Role, perm)

	case SubjectManager:
		sections, ok := sub.Tenants[tenantID]
		if !ok || tenantID == "" {
			return errors.Join(ErrUnauthorized, ErrTenantNotInScope)
		}
		if !sections[perm.Section].Allows(perm.Level) {
			return ErrUnauthorized
		}
		return nil
	}
	return ErrUnauthorized
}

// Can checks an admin role against the role table. It does not special-case
// owner; use Authorize for principals.
func (a *Authorizer) Can(role Role, perm Permission) error {
	if !a.Level(role, perm.Section).Allows(perm.Level) {
		if _, ok := a.levels[role]; !ok {
			return errors.Join(ErrUnauthorized, ErrInvalidRole)
		}
		return ErrUnauthorized
	}
	return nil
}

// Level returns the effective level role has on section.
func (a *Authorizer) Level(role Role, section string) Level {
	levels, ok := a.levels[role]
	if !ok {
		return LevelHidden
	}
	return maxLevel(maxLevel(LevelHidden, levels[SectionAll]), levels[section])
}

// VerifyRole returns ErrInvalidRole for roles that are neither owner nor in the table.
func (a *Authorizer) VerifyRole(role Role) error {
	if role == RoleOwner {
		return nil
	}
	if _, ok := a.levels[role]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return nil
}

// Roles lists the table's roles, base roles first.
func (a *Authorizer) Roles() []Role {
	return slices.Clone(a.roles)
}
