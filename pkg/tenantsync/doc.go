// Package tenantsync mirrors a reduced subscription view onto tenant records.
//
// The subscription record stays the single source of truth. The copy held in
// the tenant document's "subscription" field is a read optimization that is
// updated after the fact, on a best-effort basis: a Propagator dispatches each
// update on its own goroutine and reports failures on a channel instead of
// returning them to the transition that triggered it.
//
// Updates are either applied in-process (LocalDispatcher) or published to a
// durable AMQP queue (AMQPDispatcher) and applied by a Consumer.
package tenantsync
