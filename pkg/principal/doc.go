// Package principal stores the console's operators: admins, who act on every
// tenant according to their role, and managers, who act on the tenants an
// owning account granted them section by section.
//
// ManagerStore implements session.Refresher so manager sessions always carry
// the manager's current grants and stop working as soon as the manager is
// deactivated.
package principal
