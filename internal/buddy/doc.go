// Package buddy defines the study-buddy domain: requests, matches, scope
// compatibility and the pure status transition functions.
//
// Nothing in this package performs I/O. Every state change the engine makes
// is expressed as a Unit built from these types and committed atomically by
// the store.
//
// # Invariants
//
//   - An owner has at most one request in an active status (WAITING, PAIRED).
//   - A match references two distinct requests of two distinct owners.
//   - A request appears in at most one IN_PROGRESS match.
//   - Terminal statuses accept no further events.
package buddy
