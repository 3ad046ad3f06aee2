package console

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yamooSoluto/payment-sub001/pkg/rbac"
	"github.com/yamooSoluto/payment-sub001/pkg/session"
)

// operator authenticates an admin or manager session, admin first, and puts
// the session and its rbac subject in the request context.
func (h *handlers) operator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions := h.auth.Sessions()
		var lastErr error
		for _, m := range []*session.Manager{sessions.Admin, sessions.Manager} {
			sess, err := m.Authenticate(r)
			if err != nil {
				if errors.Is(err, session.ErrUnavailable) {
					writeError(w, r, h.logger, err)
					return
				}
				lastErr = err
				continue
			}
			sub, err := sess.Subject()
			if err != nil {
				writeError(w, r, h.logger, err)
				return
			}
			ctx := session.WithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(rbac.WithSubject(ctx, sub)))
			return
		}
		writeError(w, r, h.logger, lastErr)
	})
}

// require authorizes perm for the subject in context against the tenantID
// route parameter, when the route has one.
func (h *handlers) require(perm rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := h.authorizer.AuthorizeContext(r.Context(), chi.URLParam(r, "tenantID"), perm); err != nil {
				writeError(w, r, h.logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var errBadSecret = HTTPError{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "invalid trigger credentials"}

// bearer guards the trigger endpoints with a shared secret.
func bearer(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				writeError(w, r, log, errBadSecret)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), schedulerKey{}, true)))
		})
	}
}
