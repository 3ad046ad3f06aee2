// Package pricing decides what a subscriber is charged, independent of the
// plan's current list price.
//
// Three policies exist:
//
//   - grandfathered: the amount captured when the policy was set, forever.
//   - protected_until: the captured amount while now is before the protection
//     date, then standard pricing. The switch happens lazily on the next
//     lookup; no job flips it.
//   - standard: the plan's list price, or a per-subscriber override set by a
//     bulk price change.
//
// Engine.Apply is the per-subscriber step of a bulk policy change and is
// idempotent: applying the same Change twice yields the same Subject.
package pricing
