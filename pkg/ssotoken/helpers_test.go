package ssotoken_test

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/yamooSoluto/payment-sub001/pkg/ssotoken"
)

var (
	secret = []byte("portal-shared-secret")
	epoch  = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: epoch} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sign(t *testing.T, key []byte, claims ssotoken.Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func portalToken(t *testing.T, email string, purpose ssotoken.Purpose, iat time.Time) string {
	t.Helper()
	return sign(t, secret, ssotoken.Claims{
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(iat),
		},
	})
}
