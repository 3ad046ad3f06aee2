package rbac

import (
	"fmt"
	"strings"
)

// Level is a per-section access level.
type Level string

const (
	LevelHidden Level = "hidden"
	LevelRead   Level = "read"
	LevelWrite  Level = "write"
)

func (l Level) rank() int {
	switch l {
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	default:
		return 0
	}
}

func (l Level) Valid() bool {
	return l == LevelHidden || l == LevelRead || l == LevelWrite
}

// Allows reports whether holding l satisfies need. Nothing satisfies hidden.
func (l Level) Allows(need Level) bool {
	return need.rank() > 0 && l.rank() >= need.rank()
}

func maxLevel(a, b Level) Level {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Sections of the admin console.
const (
	SectionAll           = "*"
	SectionMembers       = "members"
	SectionTenants       = "tenants"
	SectionSubscriptions = "subscriptions"
	SectionPlans         = "plans"
	SectionManagers      = "managers"
	SectionAdmins        = "admins"
	SectionFAQ           = "faq"
	SectionSettings      = "settings"
)

// Permission is a section and the level an action needs on it.
type Permission struct {
	Section string
	Level   Level
}

// String renders p as section:level.
func (p Permission) String() string {
	return p.Section + ":" + string(p.Level)
}

// ParsePermission parses "section:level".
func ParsePermission(s string) (Permission, error) {
	section, level, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || section == "" {
		return Permission{}, fmt.Errorf("%w: %q", ErrInvalidPermission, s)
	}
	p := Permission{Section: section, Level: Level(level)}
	if !p.Level.Valid() || p.Level == LevelHidden {
		return Permission{}, fmt.Errorf("%w: %q has no usable level", ErrInvalidPermission, s)
	}
	return p, nil
}

// MustParsePermission is ParsePermission for package-level declarations.
func MustParsePermission(s string) Permission {
	p, err := ParsePermission(s)
	if err != nil {
		panic(err)
	}
	return p
}

var (
	MembersRead        = MustParsePermission("members:read")
	MembersWrite       = MustParsePermission("members:write")
	TenantsRead        = MustParsePermission("tenants:read")
	SubscriptionsRead  = MustParsePermission("subscriptions:read")
	SubscriptionsWrite = MustParsePermission("subscriptions:write")
	PlansRead          = MustParsePermission("plans:read")
	PlansWrite         = MustParsePermission("plans:write")
	ManagersWrite      = MustParsePermission("managers:write")
	AdminsWrite        = MustParsePermission("admins:write")
)
