package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/principal"
	"github.com/yamooSoluto/payment-sub001/pkg/session"
	"github.com/yamooSoluto/payment-sub001/pkg/ssotoken"
	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
)

// TokenVerifier consumes portal-signed tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*ssotoken.Identity, error)
}

// Credentials checks operator passwords.
type Credentials interface {
	Admin(ctx context.Context, loginID, password string) (*principal.Admin, error)
	Manager(ctx context.Context, loginID, password string) (*principal.Manager, error)
}

// PlanCatalog resolves the plans a checkout may be opened for.
type PlanCatalog interface {
	Plan(id string) (subscription.Plan, bool)
}

// Sessions groups the session manager of each kind.
type Sessions struct {
	Auth     *session.Manager
	Checkout *session.Manager
	Admin    *session.Manager
	Manager  *session.Manager
}

func (s Sessions) of(kind session.Kind) *session.Manager {
	switch kind {
	case session.KindAuth:
		return s.Auth
	case session.KindCheckout:
		return s.Checkout
	case session.KindAdmin:
		return s.Admin
	case session.KindManager:
		return s.Manager
	}
	return nil
}

// CheckoutRequest describes the purchase a checkout session is opened for.
// Exactly one of TenantID and IsNewTenant is set.
type CheckoutRequest struct {
	Plan        string `json:"plan"`
	TenantID    string `json:"tenantId,omitempty"`
	IsNewTenant bool   `json:"isNewTenant,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

func (r CheckoutRequest) validate(plans PlanCatalog) error {
	plan, ok := plans.Plan(r.Plan)
	switch {
	case !ok:
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, r.Plan)
	case !plan.Billable():
		return fmt.Errorf("%w: plan %s cannot be purchased", ErrInvalidInput, r.Plan)
	case r.IsNewTenant == (r.TenantID != ""):
		return fmt.Errorf("%w: name an existing tenant or ask for a new one", ErrInvalidInput)
	}
	switch subscription.ChangeMode(r.Mode) {
	case "", subscription.ChangeImmediate, subscription.ChangeReserve:
		return nil
	}
	return fmt.Errorf("%w: mode %q", ErrInvalidInput, r.Mode)
}

// Service runs the sign-in flows and hands out sessions.
type Service struct {
	tokens   TokenVerifier
	creds    Credentials
	plans    PlanCatalog
	sessions Sessions
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService panics when a required dependency is nil.
func NewService(tokens TokenVerifier, creds Credentials, plans PlanCatalog, sessions Sessions, opts ...Option) *Service {
	if tokens == nil || creds == nil || plans == nil {
		panic("auth: nil dependency")
	}
	if sessions.Auth == nil || sessions.Checkout == nil || sessions.Admin == nil || sessions.Manager == nil {
		panic("auth: missing session manager")
	}
	s := &Service{tokens: tokens, creds: creds, plans: plans, sessions: sessions, logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("auth"))
	return s
}

// Sessions returns the session managers the service opens sessions with.
func (s *Service) Sessions() Sessions { return s.sessions }

// ExchangeAccountToken opens an account session for an account-purpose token.
func (s *Service) ExchangeAccountToken(ctx context.Context, raw string) (*session.Session, error) {
	ident, err := s.verify(ctx, raw, ssotoken.PurposeAccount)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Auth.Create(ctx, session.Principal{Email: ident.Email})
	if err != nil {
		return nil, sessionErr(err)
	}
	s.logger.InfoContext(ctx, "account session opened", logger.PrincipalID(ident.Email))
	return sess, nil
}

// BeginCheckout opens a pending checkout session for a checkout-purpose token.
func (s *Service) BeginCheckout(ctx context.Context, raw string, req CheckoutRequest) (*session.Session, error) {
	if err := req.validate(s.plans); err != nil {
		return nil, err
	}
	ident, err := s.verify(ctx, raw, ssotoken.PurposeCheckout)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Checkout.Create(ctx, session.Principal{
		Email: ident.Email,
		Checkout: &session.Checkout{
			Plan:        req.Plan,
			TenantID:    req.TenantID,
			IsNewTenant: req.IsNewTenant,
			Mode:        req.Mode,
			Status:      session.CheckoutPending,
		},
	})
	if err != nil {
		return nil, sessionErr(err)
	}
	s.logger.InfoContext(ctx, "checkout started",
		logger.PrincipalID(ident.Email),
		logger.Plan(req.Plan),
		logger.TenantID(req.TenantID),
	)
	return sess, nil
}

// CompleteCheckout records the payment outcome on a pending checkout session.
// Repeating the same outcome for the same order is a no-op.
func (s *Service) CompleteCheckout(ctx context.Context, sessionID, orderID string, success bool) (*session.Session, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrInvalidInput)
	}
	sess, err := s.sessions.Checkout.Verify(ctx, sessionID)
	if err != nil {
		return nil, sessionErr(err)
	}

	status := session.CheckoutFailed
	if success {
		status = session.CheckoutSuccess
	}
	co := sess.Checkout
	if co.Status != session.CheckoutPending {
		if co.Status == status && co.OrderID == orderID {
			return sess, nil
		}
		return nil, fmt.Errorf("%w: checkout already %s", ErrCheckoutClosed, co.Status)
	}

	co.Status = status
	co.OrderID = orderID
	if err := s.sessions.Checkout.Update(ctx, sess); err != nil {
		return nil, sessionErr(err)
	}
	s.logger.InfoContext(ctx, "checkout completed",
		logger.PrincipalID(sess.PrincipalID),
		logger.Plan(co.Plan),
		logger.Status(string(status)),
	)
	return sess, nil
}

// AdminLogin opens an admin session. The role is captured at login.
func (s *Service) AdminLogin(ctx context.Context, loginID, password string) (*session.Session, error) {
	adm, err := s.creds.Admin(ctx, loginID, password)
	if err != nil {
		return nil, s.loginErr(ctx, session.KindAdmin, err)
	}
	sess, err := s.sessions.Admin.Create(ctx, adm.Principal())
	if err != nil {
		return nil, sessionErr(err)
	}
	s.logger.InfoContext(ctx, "admin logged in", logger.PrincipalID(adm.ID), logger.Role(string(adm.Role)))
	return sess, nil
}

// ManagerLogin opens a manager session.
func (s *Service) ManagerLogin(ctx context.Context, loginID, password string) (*session.Session, error) {
	m, err := s.creds.Manager(ctx, loginID, password)
	if err != nil {
		return nil, s.loginErr(ctx, session.KindManager, err)
	}
	sess, err := s.sessions.Manager.Create(ctx, m.Principal())
	if err != nil {
		return nil, sessionErr(err)
	}
	s.logger.InfoContext(ctx, "manager logged in", logger.PrincipalID(m.ID))
	return sess, nil
}

// Logout revokes a session of the given kind.
func (s *Service) Logout(ctx context.Context, kind session.Kind, sessionID string) error {
	m := s.sessions.of(kind)
	if m == nil {
		return fmt.Errorf("%w: session kind %q", ErrInvalidInput, kind)
	}
	return sessionErr(m.Revoke(ctx, sessionID))
}

func (s *Service) verify(ctx context.Context, raw string, purpose ssotoken.Purpose) (*ssotoken.Identity, error) {
	ident, err := s.tokens.Verify(ctx, raw)
	if errors.Is(err, ssotoken.ErrUnavailable) {
		return nil, errors.Join(ErrUnavailable, err)
	}
	if err != nil {
		return nil, errors.Join(ErrUnauthenticated, err)
	}
	if ident.Purpose != purpose {
		return nil, errors.Join(ErrUnauthenticated, ssotoken.ErrInvalidPurpose)
	}
	return ident, nil
}

func (s *Service) loginErr(ctx context.Context, kind session.Kind, err error) error {
	if errors.Is(err, principal.ErrUnavailable) {
		s.logger.ErrorContext(ctx, "login unavailable", logger.SessionKind(string(kind)), logger.Error(err))
		return errors.Join(ErrUnavailable, err)
	}
	s.logger.InfoContext(ctx, "login failed", logger.SessionKind(string(kind)))
	return ErrInvalidCredentials
}

func sessionErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrUnavailable):
		return errors.Join(ErrUnavailable, err)
	case errors.Is(err, session.ErrInvalidPrincipal):
		return errors.Join(ErrInvalidInput, err)
	}
	return errors.Join(ErrUnauthenticated, err)
}
