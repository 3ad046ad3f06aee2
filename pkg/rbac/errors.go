package rbac

import "errors"

var (
	// ErrUnauthorized is returned when the subject lacks the required level.
	ErrUnauthorized = errors.New("rbac.unauthorized")

	// ErrTenantNotInScope is joined with ErrUnauthorized when a manager acts on a tenant it does not hold.
	ErrTenantNotInScope = errors.New("rbac.tenant_not_in_scope")

	ErrInvalidRole         = errors.New("rbac.invalid_role")
	ErrInvalidPermission   = errors.New("rbac.invalid_permission")
	ErrCircularInheritance = errors.New("rbac.circular_inheritance")
	ErrSubjectNotInContext = errors.New("rbac.subject_not_in_context")
)
