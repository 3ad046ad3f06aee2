// Package session manages the four server-side session kinds of the billing
// console: end-user auth sessions, checkout sessions, admin sessions and
// manager sessions.
//
// Each kind has its own Manager, collection, cookie and lifetime. The cookie
// carries only the opaque session id; everything else lives in the session
// record and is never read from the client.
//
// Verify treats an expired record as absent and deletes it as a side effect.
// Session.IsExpired is the pure predicate behind that step. Manager sessions
// are refreshed from the manager principal on every Verify through a
// Refresher, so permission changes and deactivation apply on the next request.
//
// Store failures surface as ErrUnavailable. Callers must treat it as a failed
// authentication, never as a pass.
//
// Basic usage:
//
//	admins := session.New(session.KindAdmin, session.NewDocumentStore(st, session.KindAdmin),
//		cfg.Options(session.KindAdmin)...)
//
//	r.With(admins.Require).Get("/api/...", handler)
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		s, _ := session.FromContext(r.Context(), session.KindAdmin)
//		...
//	}
package session
