package session

import "errors"

var (
	// ErrUnauthenticated covers a missing cookie and an unknown, expired or revoked session.
	ErrUnauthenticated = errors.New("session.unauthenticated")

	// ErrUnavailable means the session store could not be reached. Fail closed.
	ErrUnavailable = errors.New("session.unavailable")

	ErrExpired          = errors.New("session.expired")
	ErrInvalidPrincipal = errors.New("session.invalid_principal")
	ErrInvalidSession   = errors.New("session.invalid")

	// ErrPrincipalRevoked is returned by a Refresher when the principal behind a
	// session no longer exists or was deactivated.
	ErrPrincipalRevoked = errors.New("session.principal_revoked")
)
