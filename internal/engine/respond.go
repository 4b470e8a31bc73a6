package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/sejongpeer/studybuddy/internal/buddy"
	"github.com/sejongpeer/studybuddy/internal/notify"
)

// NewRequest is a member's input for Submit.
type NewRequest struct {
	Owner      string
	Contact    string
	Scope      string
	College    string
	Department string
}

// AcceptResult describes the match after an acceptance.
type AcceptResult struct {
	Match     buddy.Match `json:"match"`
	Completed bool        `json:"completed"` // both sides have accepted
}

// Submit registers a WAITING request for in.Owner.
//
// Returns ErrInvalidRequest for a missing owner or unknown scope, and
// buddy.ErrActiveRequestExists if the owner already has a WAITING or
// PAIRED request.
func (e *Engine) Submit(ctx context.Context, in NewRequest) (buddy.Request, error) {
	owner := strings.TrimSpace(in.Owner)
	if owner == "" {
		return buddy.Request{}, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	scope, err := buddy.ParseScope(in.Scope)
	if err != nil {
		return buddy.Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	existing, err := e.store.ListRequestsByOwner(ctx, owner)
	if err != nil {
		return buddy.Request{}, fmt.Errorf("list requests of %s: %w", owner, err)
	}
	for _, r := range existing {
		if r.Status.Active() {
			return buddy.Request{}, fmt.Errorf("member %s has %s request %s: %w",
				owner, r.Status, r.ID, buddy.ErrActiveRequestExists)
		}
	}

	now := e.clock.Now()
	r := buddy.Request{
		ID:         e.requestID.Generate(),
		Owner:      owner,
		Contact:    strings.TrimSpace(in.Contact),
		Scope:      scope,
		College:    strings.TrimSpace(in.College),
		Department: strings.TrimSpace(in.Department),
		Status:     buddy.StatusWaiting,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.InsertRequest(ctx, r); err != nil {
		return buddy.Request{}, err
	}

	e.logger.Info("request submitted",
		"request_id", r.ID,
		"member_id", r.Owner,
		"scope", string(r.Scope))
	return r, nil
}

// Requests lists every request of owner, oldest first.
func (e *Engine) Requests(ctx context.Context, owner string) ([]buddy.Request, error) {
	return e.store.ListRequestsByOwner(ctx, owner)
}

// Accept records actor's acceptance of the match their PAIRED request is in.
// The request's UpdatedAt is refreshed, so an accepting member is never the
// side that times out. The second acceptance completes the match and
// confirms both requests in the same unit.
func (e *Engine) Accept(ctx context.Context, actor, requestID string) (AcceptResult, error) {
	r, err := e.ownedRequest(ctx, actor, requestID)
	if err != nil {
		return AcceptResult{}, err
	}
	if r.Status != buddy.StatusPaired {
		return AcceptResult{}, &buddy.TransitionError{Entity: "request", From: string(r.Status), Event: "accept"}
	}

	m, partner, err := e.inProgressMatch(ctx, r)
	if err != nil {
		return AcceptResult{}, err
	}

	now := e.clock.Now()
	u, completed, err := buddy.AcceptUnit(m, r, partner, now)
	if err != nil {
		return AcceptResult{}, err
	}
	if err := e.store.Apply(ctx, u); err != nil {
		return AcceptResult{}, fmt.Errorf("commit acceptance of match %s: %w", m.ID, err)
	}

	switch m.SideOf(r.ID) {
	case buddy.SideA:
		m.AcceptedA = true
	case buddy.SideB:
		m.AcceptedB = true
	}
	m.UpdatedAt = now

	if completed {
		m.Status = buddy.MatchCompleted
		e.logger.Info("match completed", "match_id", m.ID)
		e.notify(ctx, r, notify.MatchingCompleted)
		e.notify(ctx, partner, notify.MatchingCompleted)
	} else {
		e.logger.Info("match accepted", "match_id", m.ID, "request_id", r.ID)
	}
	return AcceptResult{Match: m, Completed: completed}, nil
}

// Withdraw cancels actor's request. A WAITING request is simply REJECTED.
// A PAIRED request is REJECTED together with its match, the counterpart is
// DENIED and told so.
func (e *Engine) Withdraw(ctx context.Context, actor, requestID string) error {
	r, err := e.ownedRequest(ctx, actor, requestID)
	if err != nil {
		return err
	}
	now := e.clock.Now()

	switch r.Status {
	case buddy.StatusWaiting:
		u, err := buddy.WithdrawWaitingUnit(r, now)
		if err != nil {
			return err
		}
		if err := e.store.Apply(ctx, u); err != nil {
			return fmt.Errorf("commit withdrawal of %s: %w", r.ID, err)
		}
		e.logger.Info("request withdrawn", "request_id", r.ID)
		return nil

	case buddy.StatusPaired:
		m, partner, err := e.inProgressMatch(ctx, r)
		if err != nil {
			return err
		}
		u, err := buddy.FailUnit(m, r, buddy.EventWithdrew, partner, now)
		if err != nil {
			return err
		}
		if err := e.store.Apply(ctx, u); err != nil {
			return fmt.Errorf("commit withdrawal from match %s: %w", m.ID, err)
		}
		e.logger.Info("request withdrawn from match",
			"request_id", r.ID,
			"match_id", m.ID,
			"denied", partner.ID)
		e.notify(ctx, partner, notify.MatchingWithdrawnDenied)
		return nil
	}

	return &buddy.TransitionError{Entity: "request", From: string(r.Status), Event: string(buddy.EventWithdrew)}
}

func (e *Engine) ownedRequest(ctx context.Context, actor, requestID string) (buddy.Request, error) {
	r, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return buddy.Request{}, err
	}
	if r.Owner != actor {
		return buddy.Request{}, fmt.Errorf("request %s: %w", requestID, ErrNotOwner)
	}
	return r, nil
}
