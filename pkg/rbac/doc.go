// Package rbac is the permission model of the admin console.
//
// Permissions are written "section:level", for example "members:write".
// Levels are ordered hidden < read < write and a higher level implies the
// lower ones. A grant on section "*" applies to every section.
//
// Two kinds of principal are evaluated:
//
//   - Admins hold a role. Roles map to grants through a role table with
//     inheritance (viewer < admin < super). The owner role is evaluated
//     before anything else and is allowed every action; it never appears in
//     the table.
//   - Managers hold, per tenant, a map of section to level. They may only act
//     on tenants listed in that map.
//
// The Authorizer is immutable after construction and safe for concurrent use.
package rbac
