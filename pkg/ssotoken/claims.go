package ssotoken

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose says what flow a token may open.
type Purpose string

const (
	PurposeCheckout Purpose = "checkout"
	PurposeAccount  Purpose = "account"
)

// Valid reports whether p is checkout or account.
func (p Purpose) Valid() bool {
	return p == PurposeCheckout || p == PurposeAccount
}

// Claims is the payload the portal signs.
type Claims struct {
	Email   string  `json:"email"`
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Identity is what a verified token proves.
type Identity struct {
	Email    string
	Purpose  Purpose
	IssuedAt time.Time
	// Reused is set when the token was accepted inside the grace window.
	Reused bool
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
