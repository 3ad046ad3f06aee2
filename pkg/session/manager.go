package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/metrics"
	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

const (
	idBytes = 32

	// MaxCheckoutTTL bounds checkout sessions whatever the configuration says.
	MaxCheckoutTTL = 30 * time.Minute
)

// Refresher re-reads the principal behind a session and overwrites the
// session's principal-derived attributes in place. It returns
// ErrPrincipalRevoked when the principal is gone or inactive.
type Refresher interface {
	Refresh(ctx context.Context, s *Session) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, s *Session) error

func (f RefresherFunc) Refresh(ctx context.Context, s *Session) error { return f(ctx, s) }

// Manager creates, verifies and revokes sessions of one kind.
type Manager struct {
	kind      Kind
	store     Store
	ttl       time.Duration
	transport *CookieTransport
	refresher Refresher
	onError   func(w http.ResponseWriter, r *http.Request, err error)
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the session lifetime. Checkout sessions are capped at
// MaxCheckoutTTL.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithCookie replaces the cookie transport built from Config.
func WithCookie(t *CookieTransport) Option {
	return func(m *Manager) {
		if t != nil {
			m.transport = t
		}
	}
}

// WithRefresher installs the hook run on every Verify.
func WithRefresher(r Refresher) Option {
	return func(m *Manager) { m.refresher = r }
}

// WithErrorHandler replaces the response written by Require on failure.
func WithErrorHandler(fn func(w http.ResponseWriter, r *http.Request, err error)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.onError = fn
		}
	}
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// New returns a Manager for kind. It panics on an unknown kind or nil store.
func New(kind Kind, st Store, opts ...Option) *Manager {
	if !kind.Valid() {
		panic(fmt.Sprintf("session: unknown kind %q", kind))
	}
	if st == nil {
		panic("session: nil store")
	}
	m := &Manager{
		kind:      kind,
		store:     st,
		ttl:       24 * time.Hour,
		transport: NewCookieTransport(string(kind)+"_session", true),
		onError:   defaultErrorHandler,
		now:       time.Now,
		logger:    logger.Discard(),
	}
	if kind == KindCheckout {
		m.ttl = MaxCheckoutTTL
	}
	for _, opt := range opts {
		opt(m)
	}
	if kind == KindCheckout && m.ttl > MaxCheckoutTTL {
		m.ttl = MaxCheckoutTTL
	}
	return m
}

func (m *Manager) Kind() Kind { return m.kind }

// TTL is the lifetime given to new sessions.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Cookie returns the transport carrying this kind of session.
func (m *Manager) Cookie() *CookieTransport { return m.transport }

// Create opens a session for p.
func (m *Manager) Create(ctx context.Context, p Principal) (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}

	now := m.now()
	s := &Session{
		ID:            id,
		Kind:          m.kind,
		PrincipalID:   p.ID,
		PrincipalKind: m.kind.PrincipalKind(),
		Email:         p.Email,
		LoginID:       p.LoginID,
		Name:          p.Name,
		Role:          p.Role,
		TenantScopes:  p.TenantScopes,
		Checkout:      p.Checkout,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.ttl),
	}
	if s.PrincipalID == "" && s.PrincipalKind == PrincipalUser {
		s.PrincipalID = p.Email
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidPrincipal, err)
	}

	if err := m.store.Create(ctx, s); err != nil {
		m.logger.WarnContext(ctx, "session create failed",
			logger.SessionKind(string(m.kind)), logger.PrincipalID(s.PrincipalID), logger.Error(err))
		return nil, errors.Join(ErrUnavailable, err)
	}

	m.logger.DebugContext(ctx, "session created",
		logger.SessionKind(string(m.kind)), logger.PrincipalID(s.PrincipalID))
	return s, nil
}

// Verify returns the live session for id. Expired records are deleted and
// reported as ErrUnauthenticated. Manager sessions come back with the
// principal's current tenant scopes.
func (m *Manager) Verify(ctx context.Context, id string) (*Session, error) {
	s, err := m.verify(ctx, id)
	result := metrics.ResultOK
	switch {
	case errors.Is(err, ErrUnavailable):
		result = metrics.ResultUnavailable
	case errors.Is(err, ErrExpired):
		result = metrics.ResultExpired
	case err != nil:
		result = metrics.ResultRejected
	}
	m.metrics.SessionVerified(string(m.kind), result)
	return s, err
}

func (m *Manager) verify(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrUnauthenticated
	}

	s, err := m.store.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrUnauthenticated
	case errors.Is(err, store.ErrInvalidRecord):
		m.logger.WarnContext(ctx, "dropping unreadable session",
			logger.SessionKind(string(m.kind)), logger.Error(err))
		m.discard(ctx, id)
		return nil, ErrUnauthenticated
	case err != nil:
		m.logger.WarnContext(ctx, "session lookup failed",
			logger.SessionKind(string(m.kind)), logger.Error(err))
		return nil, errors.Join(ErrUnavailable, err)
	}

	if s.Kind != m.kind || s.ID != id {
		return nil, ErrUnauthenticated
	}

	if s.IsExpired(m.now()) {
		m.discard(ctx, id)
		return nil, errors.Join(ErrUnauthenticated, ErrExpired)
	}

	if m.refresher != nil {
		if err := m.refresher.Refresh(ctx, s); err != nil {
			if errors.Is(err, ErrPrincipalRevoked) {
				m.logger.InfoContext(ctx, "session principal revoked",
					logger.SessionKind(string(m.kind)), logger.PrincipalID(s.PrincipalID))
				m.discard(ctx, id)
				return nil, errors.Join(ErrUnauthenticated, err)
			}
			m.logger.WarnContext(ctx, "session refresh failed",
				logger.SessionKind(string(m.kind)), logger.PrincipalID(s.PrincipalID), logger.Error(err))
			return nil, errors.Join(ErrUnavailable, err)
		}
	}
	return s, nil
}

// discard deletes a session found invalid during Verify. A failed delete
// leaves the record for the next read.
func (m *Manager) discard(ctx context.Context, id string) {
	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.WarnContext(ctx, "session cleanup failed",
			logger.SessionKind(string(m.kind)), logger.Error(err))
	}
}

// Update writes s back, keeping its expiry. It is used to record checkout
// progress.
func (m *Manager) Update(ctx context.Context, s *Session) error {
	if s == nil || s.Kind != m.kind {
		return ErrInvalidSession
	}
	if s.IsExpired(m.now()) {
		return errors.Join(ErrUnauthenticated, ErrExpired)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Revoke deletes the session. Unknown ids are not an error.
func (m *Manager) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	m.logger.DebugContext(ctx, "session revoked", logger.SessionKind(string(m.kind)))
	return nil
}

// RevokePrincipal deletes every session held by principalID and returns how
// many were removed.
func (m *Manager) RevokePrincipal(ctx context.Context, principalID string) (int, error) {
	sessions, err := m.store.FindByPrincipal(ctx, principalID)
	if err != nil {
		return 0, errors.Join(ErrUnavailable, err)
	}
	n := 0
	for _, s := range sessions {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return n, errors.Join(ErrUnavailable, err)
		}
		n++
	}
	return n, nil
}

func newID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
