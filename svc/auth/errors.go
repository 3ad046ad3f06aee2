package auth

import "errors"

var (
	ErrUnauthenticated    = errors.New("auth.unauthenticated")
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	ErrInvalidInput       = errors.New("auth.invalid_input")
	ErrCheckoutClosed     = errors.New("auth.checkout_closed")
	ErrUnavailable        = errors.New("auth.unavailable")
)
