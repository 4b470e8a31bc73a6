package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sejongpeer/studybuddy/internal/buddy"
	"github.com/sejongpeer/studybuddy/internal/notify"
)

// MatchingReport summarizes one matching tick.
type MatchingReport struct {
	Considered int `json:"considered"` // WAITING requests taking part in the scan
	Paired     int `json:"paired"`     // matches created
	Failed     int `json:"failed"`     // pairs whose commit failed
	Excluded   int `json:"excluded"`   // WAITING requests left out (owner busy or duplicate)
}

// ExecuteMatching pairs WAITING requests oldest first.
//
// Each request takes the first compatible partner that comes after it in
// FIFO order. Every pair is committed as its own unit; a failed commit
// leaves that pair WAITING for the next tick and the scan continues. When
// the commit failed because one side changed concurrently, the side that
// is still WAITING stays available to later candidates in this tick.
//
// Returns ErrTickInProgress if another matching tick holds the lock.
func (e *Engine) ExecuteMatching(ctx context.Context) (MatchingReport, error) {
	var report MatchingReport

	release, err := e.lock(ctx, LockMatching)
	if err != nil {
		return report, err
	}
	defer release()

	pool, excluded, err := e.matchingPool(ctx)
	if err != nil {
		return report, err
	}
	report.Considered = len(pool)
	report.Excluded = excluded

	taken := make([]bool, len(pool))
	for i := range pool {
		if taken[i] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		for j := i + 1; j < len(pool); j++ {
			if taken[j] || !buddy.Compatible(pool[i], pool[j]) {
				continue
			}

			taken[i], taken[j] = true, true
			err := e.pair(ctx, pool[i], pool[j])
			if err == nil {
				report.Paired++
				break
			}

			report.Failed++
			e.logger.Error("pairing failed",
				"request_a", pool[i].ID,
				"request_b", pool[j].ID,
				"error", err)

			keepA, keepB := e.stillWaiting(ctx, err, &pool[i], &pool[j])
			taken[j] = !keepB
			if !keepA {
				break
			}
			taken[i] = false
		}
	}

	e.logger.Info("matching tick complete",
		"considered", report.Considered,
		"paired", report.Paired,
		"failed", report.Failed,
		"excluded", report.Excluded)
	return report, nil
}

// matchingPool returns the WAITING requests eligible for this tick in FIFO
// order. An owner with a PAIRED request is left out entirely; an owner with
// several WAITING requests takes part with the oldest one only.
func (e *Engine) matchingPool(ctx context.Context) ([]buddy.Request, int, error) {
	waiting, err := e.store.ListRequestsByStatus(ctx, buddy.StatusWaiting)
	if err != nil {
		return nil, 0, fmt.Errorf("list waiting requests: %w", err)
	}
	paired, err := e.store.ListRequestsByStatus(ctx, buddy.StatusPaired)
	if err != nil {
		return nil, 0, fmt.Errorf("list paired requests: %w", err)
	}

	slices.SortStableFunc(waiting, compareFIFO)

	busy := make(map[string]bool, len(paired))
	for _, r := range paired {
		busy[r.Owner] = true
	}

	pool := make([]buddy.Request, 0, len(waiting))
	excluded := 0
	for _, r := range waiting {
		if busy[r.Owner] {
			excluded++
			e.logger.Debug("owner already paired, skipping request",
				"request_id", r.ID, "member_id", r.Owner)
			continue
		}
		busy[r.Owner] = true
		pool = append(pool, r)
	}
	return pool, excluded, nil
}

// stillWaiting decides which side of a failed pair may be offered again in
// this tick. Only a concurrent change (ErrStaleState) qualifies, and only
// the side whose stored status is still WAITING; a and b are refreshed
// from the store. If neither side changed, both sit out the tick.
func (e *Engine) stillWaiting(ctx context.Context, err error, a, b *buddy.Request) (keepA, keepB bool) {
	if !errors.Is(err, buddy.ErrStaleState) {
		return false, false
	}

	waiting := func(r *buddy.Request) bool {
		fresh, err := e.store.GetRequest(ctx, r.ID)
		if err != nil || fresh.Status != buddy.StatusWaiting {
			return false
		}
		*r = fresh
		return true
	}
	keepA, keepB = waiting(a), waiting(b)
	if keepA && keepB {
		return false, false
	}
	return keepA, keepB
}

// pair commits the match for a and b, then tells both owners.
func (e *Engine) pair(ctx context.Context, a, b buddy.Request) error {
	matchID := e.matchID.Generate()
	u, err := buddy.PairUnit(matchID, a, b, e.clock.Now())
	if err != nil {
		return err
	}
	if err := e.store.Apply(ctx, u); err != nil {
		return fmt.Errorf("commit match %s: %w", matchID, err)
	}

	e.logger.Info("match created",
		"match_id", matchID,
		"request_a", a.ID,
		"request_b", b.ID)
	e.notify(ctx, a, notify.MatchFound)
	e.notify(ctx, b, notify.MatchFound)
	return nil
}

// compareFIFO orders requests by creation time, then by compareIDs.
func compareFIFO(a, b buddy.Request) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return compareIDs(a.ID, b.ID)
}

// compareIDs orders IDs from one generator by issue order. UUIDv7 IDs are
// fixed width, and sequence IDs grow in length ("req-9" before "req-10"),
// so shorter sorts first and equal lengths compare bytewise.
func compareIDs(a, b string) int {
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}
