package statemachine

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("statemachine.invalid_transition")

// NoTransitionError means no transition is declared for the state and event.
type NoTransitionError struct {
	From  string
	Event string
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition from %q on %q", e.From, e.Event)
}

// RejectedError means every declared transition was vetoed by a guard.
type RejectedError struct {
	From   string
	Event  string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transition from %q on %q rejected", e.From, e.Event)
	}
	return fmt.Sprintf("transition from %q on %q rejected: %s", e.From, e.Event, e.Reason)
}

// IsNoTransition reports whether err means no transition matched.
func IsNoTransition(err error) bool {
	var e *NoTransitionError
	return errors.As(err, &e)
}

// IsRejected reports whether err means every matching transition was guarded out.
func IsRejected(err error) bool {
	var e *RejectedError
	return errors.As(err, &e)
}
