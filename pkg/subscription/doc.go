// Package subscription owns the canonical subscription record of each tenant
// and the state machine that mutates it.
//
// Statuses and the transitions between them:
//
//	none ──start──> trialing | active
//	trialing ──renew──> active            (on the pending plan or a billable live plan)
//	trialing ──expire_trial──> expired
//	active ──mark_past_due──> past_due ──mark_active──> active
//	active ──cancel(end_of_period)──> pending_cancel ──renew──> canceled
//	pending_cancel ──reactivate──> active
//	live ──cancel(immediate)──> canceled
//	active | past_due ──suspend──> suspended ──resume──> active
//	any ──mark_deleted──> deleted
//
// canceled, expired and deleted are terminal; start may be called on them
// again. Every transition is a total function over the current record: an
// illegal starting state yields a *TransitionError wrapping
// ErrIllegalTransition (or ErrAlreadySubscribed for start) and leaves the
// record untouched.
//
// Each successful transition writes one whole record. Transitions on the same
// tenant are serialized in process; across processes the last write wins.
// The service knows nothing about the tenant mirror; callers sync it.
package subscription
