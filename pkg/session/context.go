package session

import "context"

type sessionContextKey struct{ kind Kind }

// WithSession stores s in ctx under its kind, so sessions of different kinds
// can coexist on one request.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{kind: s.Kind}, s)
}

// FromContext returns the session of kind placed by Require.
func FromContext(ctx context.Context, kind Kind) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{kind: kind}).(*Session)
	return s, ok
}
