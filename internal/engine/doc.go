// Package engine implements the study-buddy procedures: the matching engine,
// the stale-match reconciliation loop and the member-driven submit, accept
// and withdraw operations.
//
// ARCHITECTURE:
//
// Procedures are plain methods over a Store. They hold no state between
// calls, so the scheduler, the CLI and tests all invoke them the same way,
// and a tick that dies halfway is repaired by the next tick reading
// persisted state.
//
// Atomic Units:
// Every decision is turned into a buddy.Unit and committed with one
// Store.Apply call. A unit either lands completely or not at all; a unit
// built from a stale read is rejected with buddy.ErrStaleState.
//
// Tick Flow (ExecuteMatching, ReconcileStale):
// 1. Acquire the per-procedure lock (Locker). Held for the whole tick.
// 2. Read the working pool (WAITING or PAIRED requests).
// 3. Decide and commit one unit per pair or per stale request.
// 4. After each commit, notify the affected members (best-effort).
//
// ERROR HANDLING:
// A failed unit is logged and the tick moves on to the next candidate.
// Notification failures are logged and never undo a committed unit.
// Data-consistency problems (a PAIRED request without exactly one
// IN_PROGRESS match) are reported as *ConsistencyError and skipped, never
// repaired by guessing.
//
// CRITICAL PATTERNS:
//
// FIFO Fairness:
// WAITING requests are considered oldest first (created_at, then id), and
// each one takes the first compatible partner in the same order.
//
// Explicit Actor:
// Operations on behalf of a member take the member ID as an argument.
// Nothing is read from ambient request context.
package engine
