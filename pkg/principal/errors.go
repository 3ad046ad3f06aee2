package principal

import "errors"

var (
	ErrNotFound           = errors.New("principal.not_found")
	ErrInvalidPrincipal   = errors.New("principal.invalid")
	ErrLoginIDTaken       = errors.New("principal.login_id_taken")
	ErrOwnerImmutable     = errors.New("principal.owner_immutable")
	ErrInvalidCredentials = errors.New("principal.invalid_credentials")
	ErrWeakPassword       = errors.New("principal.weak_password")
	ErrUnavailable        = errors.New("principal.unavailable")
)
