// Package store provides SQLite-backed persistence for buddy requests,
// buddy matches and procedure leases.
//
// # Critical Patterns
//
// Atomic units:
//   - Every state change arrives as a buddy.Unit and is applied in one
//     transaction (see Apply).
//   - Each UPDATE carries the expected current status in its WHERE clause.
//     A guard that matches zero rows rolls the whole unit back and returns
//     buddy.ErrStaleState.
//
// Deterministic reads:
//   - Request queries are ordered by created_at ASC, id ASC COLLATE BINARY,
//     which is the FIFO order the matching engine relies on.
//
// One active request per owner:
//   - A partial UNIQUE index over owner WHERE status IN ('WAITING','PAIRED').
//
// Timestamps are stored as INTEGER Unix nanoseconds in UTC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
