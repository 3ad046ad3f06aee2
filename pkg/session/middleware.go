package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/yamooSoluto/payment-sub001/pkg/metrics"
)

// Open creates a session for p and sets its cookie.
func (m *Manager) Open(ctx context.Context, w http.ResponseWriter, p Principal) (*Session, error) {
	s, err := m.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	m.transport.Set(w, s.ID, m.ttl)
	return s, nil
}

// Authenticate verifies the session named by the request cookie.
func (m *Manager) Authenticate(r *http.Request) (*Session, error) {
	id, err := m.transport.Token(r)
	if err != nil {
		m.metrics.SessionVerified(string(m.kind), metrics.ResultInvalid)
		return nil, err
	}
	return m.Verify(r.Context(), id)
}

// Close revokes the request's session, if any, and clears the cookie.
func (m *Manager) Close(w http.ResponseWriter, r *http.Request) error {
	m.transport.Clear(w)
	id, err := m.transport.Token(r)
	if err != nil {
		return nil
	}
	return m.Revoke(r.Context(), id)
}

// Require rejects requests without a live session of the manager's kind and
// stores the session in the request context otherwise.
func (m *Manager) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Authenticate(r)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				m.transport.Clear(w)
			}
			m.onError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, ErrUnavailable) {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
