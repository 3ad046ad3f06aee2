package principal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
)

// Authenticator checks admin and manager passwords. Every failure is reported
// as ErrInvalidCredentials, except store outages which are ErrUnavailable.
type Authenticator struct {
	admins   *AdminStore
	managers *ManagerStore
	cost     int
	now      func() time.Time
	logger   *slog.Logger

	dummyOnce sync.Once
	dummy     []byte
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithCost sets the bcrypt cost of the hash compared against when the login
// id is unknown. It should match the cost of stored hashes.
func WithCost(cost int) AuthenticatorOption {
	return func(a *Authenticator) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			a.cost = cost
		}
	}
}

// WithClock overrides the clock used for lastLoginAt.
func WithClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLogger(l *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAuthenticator checks passwords against admins and managers.
func NewAuthenticator(admins *AdminStore, managers *ManagerStore, opts ...AuthenticatorOption) *Authenticator {
	if admins == nil || managers == nil {
		panic("principal: nil store")
	}
	a := &Authenticator{
		admins:   admins,
		managers: managers,
		cost:     DefaultCost,
		now:      time.Now,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("principal"))
	return a
}

// Admin authenticates an admin and records the login time.
func (a *Authenticator) Admin(ctx context.Context, loginID, password string) (*Admin, error) {
	adm, err := a.admins.GetByLoginID(ctx, loginID)
	if err != nil {
		return nil, a.miss(err, password)
	}
	if !CheckPassword(adm.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	now := a.now().UTC()
	adm.LastLoginAt = &now
	if err := a.admins.touch(ctx, adm.ID, now); err != nil {
		a.logger.WarnContext(ctx, "record admin login failed", logger.PrincipalID(adm.ID), logger.Error(err))
	}
	return adm, nil
}

// Manager authenticates an active manager and records the login time.
func (a *Authenticator) Manager(ctx context.Context, loginID, password string) (*Manager, error) {
	m, err := a.managers.GetByLoginID(ctx, loginID)
	if err != nil {
		return nil, a.miss(err, password)
	}
	if !CheckPassword(m.PasswordHash, password) || !m.Active {
		return nil, ErrInvalidCredentials
	}

	now := a.now().UTC()
	m.LastLoginAt = &now
	if err := a.managers.touch(ctx, m.ID, now); err != nil {
		a.logger.WarnContext(ctx, "record manager login failed", logger.PrincipalID(m.ID), logger.Error(err))
	}
	return m, nil
}

// miss burns a bcrypt comparison for unknown login ids so their response
// time matches a wrong password.
func (a *Authenticator) miss(err error, password string) error {
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	a.dummyOnce.Do(func() {
		a.dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), a.cost)
	})
	_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
	return ErrInvalidCredentials
}
