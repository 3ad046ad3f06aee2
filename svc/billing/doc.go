// Package billing runs subscription transitions on behalf of admin actions and
// billing triggers, and mirrors every result onto the tenant record.
//
// The mirror is best effort: a transition that was saved is reported as
// successful whatever happens to the mirror update that follows it.
package billing
