// Package ssotoken verifies the single-use sign-on tokens issued by the
// customer portal and exchanges them for an identity.
//
// A token is an HS256 JWT carrying the subject email, a purpose (checkout or
// account) and its issue time. Verification checks the signature and the
// signing window, then claims the token in a usage Ledger. The ledger relies
// on the backend's create-if-absent primitive, so of any number of concurrent
// verifications exactly one is the first use. A repeat verification within the
// grace window returns the same identity, which keeps page reloads working;
// after the window it fails with ErrTokenReplay.
//
// Raw token values are never stored. The ledger is keyed by their SHA-256.
package ssotoken
