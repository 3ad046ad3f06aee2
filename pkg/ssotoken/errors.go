package ssotoken

import "errors"

var (
	ErrInvalidToken   = errors.New("ssotoken.invalid")
	ErrTokenExpired   = errors.New("ssotoken.expired")
	ErrInvalidPurpose = errors.New("ssotoken.invalid_purpose")
	ErrTokenReplay    = errors.New("ssotoken.replay")
	ErrUnavailable    = errors.New("ssotoken.unavailable")

	// ErrAlreadyClaimed is returned by a Ledger when the token has been used before.
	ErrAlreadyClaimed = errors.New("ssotoken.already_claimed")
)
