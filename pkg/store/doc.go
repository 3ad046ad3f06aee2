// Package store is the credential store: durable documents keyed by
// collection and opaque id (tokens, session ids, tenant ids).
//
// The Store interface is deliberately small. Callers get point reads and
// writes, a shallow field-level Update, an equality query, and Create, an
// atomic create-if-absent used wherever "first writer wins" must hold (token
// consumption). There are no transactions, joins or range queries.
//
// Three backends implement it:
//
//   - Memory: in-process, used by tests and single-node development.
//   - MongoStore: one MongoDB collection per store collection, _id = id.
//   - PostgresStore: a single JSONB table migrated with goose.
//
// Collection[T] is the typed edge: it decodes documents into records and runs
// their Validate method, so services never handle raw maps.
//
// WithTimeout bounds every call; deadline and transport failures surface as
// ErrUnavailable so that authentication paths can fail closed.
package store
