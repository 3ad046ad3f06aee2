package tenantsync

import "errors"

var (
	ErrInvalidMessage = errors.New("tenantsync.invalid_message")
	ErrUnavailable    = errors.New("tenantsync.unavailable")
)

// SyncError is reported on Propagator.Errors for every failed update.
type SyncError struct {
	TenantID string
	Err      error
}

func (e SyncError) Error() string {
	return "tenantsync: " + e.TenantID + ": " + e.Err.Error()
}

func (e SyncError) Unwrap() error { return e.Err }
