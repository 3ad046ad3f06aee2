package subscription

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("subscription.not_found")
	ErrAlreadySubscribed = errors.New("subscription.already_subscribed")
	ErrIllegalTransition = errors.New("subscription.illegal_transition")
	ErrUnknownPlan       = errors.New("subscription.unknown_plan")
	ErrInvalidInput      = errors.New("subscription.invalid_input")
	ErrInvalidCatalog    = errors.New("subscription.invalid_catalog")
	ErrInvalidRecord     = errors.New("subscription.invalid_record")
	ErrUnavailable       = errors.New("subscription.unavailable")
)

// TransitionError is a rejected transition. Reason is meant for operators.
type TransitionError struct {
	From       Status
	Transition Transition
	Reason     string
	err        error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s from %s rejected: %s", e.Transition, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error { return e.err }
