package rbac

import "context"

type subjectContextKey struct{}

// WithSubject stores sub in ctx for AuthorizeContext.
func WithSubject(ctx context.Context, sub Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, sub)
}

// SubjectFromContext returns the subject stored by WithSubject.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	sub, ok := ctx.Value(subjectContextKey{}).(Subject)
	return sub, ok
}

// AuthorizeContext authorizes the subject stored in ctx.
func (a *Authorizer) AuthorizeContext(ctx context.Context, tenantID string, perm Permission) error {
	sub, ok := SubjectFromContext(ctx)
	if !ok {
		return ErrSubjectNotInContext
	}
	return a.Authorize(sub, tenantID, perm)
}
