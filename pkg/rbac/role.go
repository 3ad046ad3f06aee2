package rbac

import "context"

// Role is an admin role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleSuper  Role = "super"
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// RoleDefinition lists a role's own grants and the roles it inherits from.
type RoleDefinition struct {
	Grants   []string `yaml:"grants" json:"grants"`
	Inherits []Role   `yaml:"inherits" json:"inherits"`
}

// RoleSource provides the role table.
type RoleSource interface {
	Load(ctx context.Context) (map[Role]RoleDefinition, error)
}

// StaticSource is a RoleSource backed by a literal table.
type StaticSource map[Role]RoleDefinition

func (s StaticSource) Load(context.Context) (map[Role]RoleDefinition, error) {
	return s, nil
}

// DefaultRoles is the console's role table.
func DefaultRoles() StaticSource {
	return StaticSource{
		RoleViewer: {
			Grants: []string{"*:read"},
		},
		RoleAdmin: {
			Inherits: []Role{RoleViewer},
			Grants: []string{
				"members:write",
				"tenants:write",
				"subscriptions:write",
				"managers:write",
				"faq:write",
			},
		},
		RoleSuper: {
			Inherits: []Role{RoleAdmin},
			Grants:   []string{"*:write"},
		},
	}
}
