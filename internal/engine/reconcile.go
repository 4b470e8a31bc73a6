package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sejongpeer/studybuddy/internal/buddy"
	"github.com/sejongpeer/studybuddy/internal/notify"
)

// DefaultStaleTimeout is how long a PAIRED request may go without a
// response before the reconciliation loop fails its match.
const DefaultStaleTimeout = 24 * time.Hour

// ReconcileReport summarizes one reconciliation tick.
type ReconcileReport struct {
	Scanned      int `json:"scanned"`      // PAIRED requests read
	Stale        int `json:"stale"`        // requests past the timeout
	Resolved     int `json:"resolved"`     // matches failed by this tick
	Inconsistent int `json:"inconsistent"` // requests skipped for a consistency error
	Failed       int `json:"failed"`       // commits that failed for other reasons
	Skipped      int `json:"skipped"`      // already resolved in this tick or by a concurrent writer
}

// ReconcileStale fails every IN_PROGRESS match whose PAIRED request has
// gone unanswered for at least timeout.
//
// The stale request is REJECTED, its counterpart DENIED and the match
// FAILED, all in one unit. Both owners are then notified with distinct
// templates. Requests are processed oldest first; a request already
// resolved as someone's counterpart earlier in the tick is skipped.
//
// Returns ErrInvalidTimeout for timeout <= 0 and ErrTickInProgress if
// another reconciliation tick holds the lock.
func (e *Engine) ReconcileStale(ctx context.Context, timeout time.Duration) (ReconcileReport, error) {
	var report ReconcileReport

	if timeout <= 0 {
		return report, ErrInvalidTimeout
	}

	release, err := e.lock(ctx, LockReconcile)
	if err != nil {
		return report, err
	}
	defer release()

	paired, err := e.store.ListRequestsByStatus(ctx, buddy.StatusPaired)
	if err != nil {
		return report, fmt.Errorf("list paired requests: %w", err)
	}
	slices.SortStableFunc(paired, compareFIFO)

	now := e.clock.Now()
	resolved := make(map[string]bool)

	for _, r := range paired {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		if resolved[r.ID] {
			report.Skipped++
			continue
		}
		if now.Sub(r.UpdatedAt) < timeout {
			continue
		}
		report.Stale++

		partner, err := e.resolveStale(ctx, r, now)
		switch {
		case err == nil:
			report.Resolved++
			resolved[r.ID] = true
			resolved[partner] = true
		case IsConsistencyError(err):
			report.Inconsistent++
			e.logger.Error("inconsistent match state, skipping request",
				"request_id", r.ID,
				"error", err)
		case errors.Is(err, buddy.ErrStaleState):
			report.Skipped++
			e.logger.Info("request changed concurrently, skipping",
				"request_id", r.ID,
				"error", err)
		default:
			report.Failed++
			e.logger.Error("failed to resolve stale request",
				"request_id", r.ID,
				"error", err)
		}
	}

	e.logger.Info("reconcile tick complete",
		"scanned", report.Scanned,
		"stale", report.Stale,
		"resolved", report.Resolved,
		"inconsistent", report.Inconsistent,
		"failed", report.Failed,
		"skipped", report.Skipped)
	return report, nil
}

// resolveStale fails the single IN_PROGRESS match of r and returns the
// counterpart's request ID.
func (e *Engine) resolveStale(ctx context.Context, r buddy.Request, now time.Time) (string, error) {
	m, partner, err := e.inProgressMatch(ctx, r)
	if err != nil {
		return "", err
	}

	u, err := buddy.FailUnit(m, r, buddy.EventTimedOut, partner, now)
	if err != nil {
		return "", err
	}
	if err := e.store.Apply(ctx, u); err != nil {
		return "", fmt.Errorf("commit timeout of match %s: %w", m.ID, err)
	}

	e.logger.Info("match auto-failed",
		"match_id", m.ID,
		"rejected", r.ID,
		"denied", partner.ID,
		"idle", now.Sub(r.UpdatedAt).String())
	e.notify(ctx, r, notify.MatchingAutoFailedReject)
	e.notify(ctx, partner, notify.MatchingAutoFailedDenied)
	return partner.ID, nil
}

// inProgressMatch loads the one IN_PROGRESS match of a PAIRED request and
// its counterpart. Anything other than exactly one match with a PAIRED
// counterpart is a *ConsistencyError.
func (e *Engine) inProgressMatch(ctx context.Context, r buddy.Request) (buddy.Match, buddy.Request, error) {
	matches, err := e.store.FindInProgressMatches(ctx, r.ID)
	if err != nil {
		return buddy.Match{}, buddy.Request{}, fmt.Errorf("find match of %s: %w", r.ID, err)
	}
	if len(matches) != 1 {
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return buddy.Match{}, buddy.Request{}, newMatchCountError(r.ID, ids)
	}
	m := matches[0]

	otherID, _ := m.Other(r.ID)
	partner, err := e.store.GetRequest(ctx, otherID)
	if errors.Is(err, buddy.ErrNotFound) {
		return buddy.Match{}, buddy.Request{}, &ConsistencyError{
			Code:      ErrCodeCounterpartMissing,
			Message:   fmt.Sprintf("counterpart %s does not exist", otherID),
			RequestID: r.ID,
			MatchIDs:  []string{m.ID},
		}
	}
	if err != nil {
		return buddy.Match{}, buddy.Request{}, fmt.Errorf("load counterpart of %s: %w", r.ID, err)
	}
	if partner.Status != buddy.StatusPaired {
		return buddy.Match{}, buddy.Request{}, &ConsistencyError{
			Code:      ErrCodeCounterpartNotPaired,
			Message:   fmt.Sprintf("counterpart %s is %s", partner.ID, partner.Status),
			RequestID: r.ID,
			MatchIDs:  []string{m.ID},
		}
	}
	return m, partner, nil
}
