// Package statemachine is a small table-driven finite state machine engine.
//
// A Machine holds transitions only; the current state lives with the caller
// (typically in a persisted record), which makes a Machine immutable after
// construction and safe for concurrent use.
//
// Each transition is "from --event--> to" with optional guards and actions.
// Several transitions may share a from/event pair; the first one whose
// guards all pass wins, so declaration order is priority order. Guards
// return an error to reject, and the first rejection's message is kept as
// the human readable reason on RejectedError. Actions run in order after the
// guards pass; a failing action aborts the transition.
//
//	const (
//		Draft    State = "draft"
//		InReview State = "in_review"
//		Submit   Event = "submit"
//	)
//
//	m := statemachine.MustNew(
//		statemachine.WithTransition[State, Event, *Doc](Draft, InReview, Submit,
//			statemachine.WithGuard(hasTitle)),
//	)
//
//	next, err := m.Fire(ctx, doc.State, Submit, doc)
//
// Fire returns *NoTransitionError when nothing is declared for the pair and
// *RejectedError when every candidate was vetoed by a guard.
package statemachine
