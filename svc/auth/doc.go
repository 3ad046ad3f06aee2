// Package auth implements the console's sign-in flows: exchanging portal
// tokens for account and checkout sessions, and password login for admins and
// managers. Every flow ends by opening a session through a session.Manager.
package auth
