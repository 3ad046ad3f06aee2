package ssotoken

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/metrics"
)

// Config holds the verifier settings.
type Config struct {
	Secret        string        `env:"SSO_TOKEN_SECRET"`
	SigningWindow time.Duration `env:"SSO_SIGNING_WINDOW" envDefault:"5m"`
	GraceWindow   time.Duration `env:"SSO_GRACE_WINDOW" envDefault:"5s"`
	UsageTTL      time.Duration `env:"SSO_USAGE_TTL" envDefault:"1h"`
	ClockLeeway   time.Duration `env:"SSO_CLOCK_LEEWAY" envDefault:"30s"`
}

// Options maps the config onto verifier options.
func (c Config) Options() []Option {
	return []Option{
		WithSigningWindow(c.SigningWindow),
		WithGraceWindow(c.GraceWindow),
		WithUsageTTL(c.UsageTTL),
		WithLeeway(c.ClockLeeway),
	}
}

// Verifier checks portal SSO tokens and enforces single use through a Ledger.
type Verifier struct {
	secret        []byte
	ledger        Ledger
	signingWindow time.Duration
	grace         time.Duration
	usageTTL      time.Duration
	leeway        time.Duration
	now           func() time.Time
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithSigningWindow sets how old a token may be. Defaults to 5m.
func WithSigningWindow(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.signingWindow = d
		}
	}
}

// WithGraceWindow sets how long a used token keeps verifying. Defaults to 5s.
func WithGraceWindow(d time.Duration) Option {
	return func(v *Verifier) {
		if d >= 0 {
			v.grace = d
		}
	}
}

// WithUsageTTL sets how long usage records are kept. It is independent of
// any session lifetime.
func WithUsageTTL(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.usageTTL = d
		}
	}
}

// WithLeeway sets the tolerated clock skew with the portal.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) {
		if d >= 0 {
			v.leeway = d
		}
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// NewVerifier panics when secret is empty or ledger is nil.
func NewVerifier(secret []byte, ledger Ledger, opts ...Option) *Verifier {
	if len(secret) == 0 {
		panic("ssotoken: empty signing secret")
	}
	if ledger == nil {
		panic("ssotoken: nil ledger")
	}
	v := &Verifier{
		secret:        secret,
		ledger:        ledger,
		signingWindow: 5 * time.Minute,
		grace:         5 * time.Second,
		usageTTL:      time.Hour,
		leeway:        30 * time.Second,
		now:           time.Now,
		logger:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks raw and consumes it. It returns the identity on first use
// and on reuse within the grace window. Every failure is a typed error:
// ErrInvalidToken (with ErrTokenExpired or ErrInvalidPurpose where they
// apply), ErrTokenReplay or ErrUnavailable.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	claims, err := v.parse(raw)
	if err != nil {
		result := metrics.ResultInvalid
		if errors.Is(err, ErrTokenExpired) {
			result = metrics.ResultExpired
		}
		v.metrics.TokenVerified(result)
		v.logger.DebugContext(ctx, "sso token rejected", logger.Component("ssotoken"), logger.Error(err))
		return nil, err
	}

	now := v.now()
	ident := &Identity{
		Email:    normalizeEmail(claims.Email),
		Purpose:  claims.Purpose,
		IssuedAt: claims.IssuedAt.Time,
	}
	usage := Usage{
		TokenHash:      hashToken(raw),
		Email:          ident.Email,
		Purpose:        ident.Purpose,
		UsedAt:         now,
		GraceExpiresAt: now.Add(v.grace),
		ExpiresAt:      now.Add(v.usageTTL),
	}

	existing, err := v.ledger.Claim(ctx, usage)
	switch {
	case err == nil:
		v.metrics.TokenVerified(metrics.ResultOK)
		return ident, nil

	case errors.Is(err, ErrAlreadyClaimed):
		if existing != nil && existing.Email == ident.Email && now.Before(existing.GraceExpiresAt) {
			v.metrics.TokenVerified(metrics.ResultGrace)
			ident.Reused = true
			return ident, nil
		}
		v.metrics.TokenVerified(metrics.ResultReplay)
		v.logger.WarnContext(ctx, "sso token replayed",
			logger.Component("ssotoken"),
			slog.String("purpose", string(ident.Purpose)),
		)
		return nil, ErrTokenReplay

	default:
		v.metrics.TokenVerified(metrics.ResultUnavailable)
		v.logger.ErrorContext(ctx, "sso token ledger unavailable", logger.Component("ssotoken"), logger.Error(err))
		return nil, errors.Join(ErrUnavailable, err)
	}
}

// VerifyEmail returns the token's email, or "" when verification fails for
// any reason.
func (v *Verifier) VerifyEmail(ctx context.Context, raw string) string {
	ident, err := v.Verify(ctx, raw)
	if err != nil {
		return ""
	}
	return ident.Email
}

func (v *Verifier) parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Join(ErrInvalidToken, ErrTokenExpired)
		}
		return nil, errors.Join(ErrInvalidToken, err)
	}

	if claims.IssuedAt == nil {
		return nil, errors.Join(ErrInvalidToken, errors.New("missing iat"))
	}
	if v.now().Sub(claims.IssuedAt.Time) > v.signingWindow+v.leeway {
		return nil, errors.Join(ErrInvalidToken, ErrTokenExpired)
	}
	if normalizeEmail(claims.Email) == "" {
		return nil, errors.Join(ErrInvalidToken, errors.New("missing email"))
	}
	if !claims.Purpose.Valid() {
		return nil, errors.Join(ErrInvalidToken, ErrInvalidPurpose)
	}
	return &claims, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
