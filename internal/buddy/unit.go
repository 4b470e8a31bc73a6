package buddy

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyAccepted is returned when a side accepts a match twice.
var ErrAlreadyAccepted = errors.New("match already accepted by this side")

// RequestChange moves one request from From to To. From == To only bumps
// the request's UpdatedAt.
type RequestChange struct {
	ID   string
	From RequestStatus
	To   RequestStatus
}

// MatchChange moves one match from From to To and optionally records a
// side's acceptance.
type MatchChange struct {
	ID     string
	From   MatchStatus
	To     MatchStatus
	Accept Side
}

// Unit is one atomic group of state changes. A store applies all of it or
// none of it; every From is checked against the stored status first.
type Unit struct {
	At       time.Time
	NewMatch *Match
	Match    *MatchChange
	Requests []RequestChange
}

// Validate checks the unit's internal consistency before it reaches a store.
func (u Unit) Validate() error {
	if u.NewMatch == nil && u.Match == nil && len(u.Requests) == 0 {
		return errors.New("empty unit")
	}
	if u.At.IsZero() {
		return errors.New("unit has no timestamp")
	}
	if m := u.NewMatch; m != nil {
		if m.ID == "" {
			return errors.New("new match has no id")
		}
		if m.RequestA == m.RequestB {
			return fmt.Errorf("match %s pairs request %s with itself", m.ID, m.RequestA)
		}
	}
	seen := make(map[string]bool, len(u.Requests))
	for _, rc := range u.Requests {
		if seen[rc.ID] {
			return fmt.Errorf("request %s changed twice in one unit", rc.ID)
		}
		seen[rc.ID] = true
	}
	return nil
}

// PairUnit builds the unit that pairs two WAITING requests into a new
// IN_PROGRESS match.
func PairUnit(matchID string, a, b Request, at time.Time) (Unit, error) {
	if !Compatible(a, b) {
		return Unit{}, fmt.Errorf("requests %s and %s are not compatible", a.ID, b.ID)
	}
	toA, err := NextRequestStatus(a.Status, EventPaired)
	if err != nil {
		return Unit{}, fmt.Errorf("pair %s: %w", a.ID, err)
	}
	toB, err := NextRequestStatus(b.Status, EventPaired)
	if err != nil {
		return Unit{}, fmt.Errorf("pair %s: %w", b.ID, err)
	}

	return Unit{
		At: at,
		NewMatch: &Match{
			ID:        matchID,
			RequestA:  a.ID,
			RequestB:  b.ID,
			Status:    MatchInProgress,
			CreatedAt: at,
			UpdatedAt: at,
		},
		Requests: []RequestChange{
			{ID: a.ID, From: a.Status, To: toA},
			{ID: b.ID, From: b.Status, To: toB},
		},
	}, nil
}

// FailUnit builds the unit that fails match m because failing either timed
// out or withdrew. The counterpart is denied.
func FailUnit(m Match, failing Request, ev RequestEvent, partner Request, at time.Time) (Unit, error) {
	other, ok := m.Other(failing.ID)
	if !ok {
		return Unit{}, fmt.Errorf("request %s is not part of match %s", failing.ID, m.ID)
	}
	if other != partner.ID {
		return Unit{}, fmt.Errorf("request %s is not the counterpart of %s in match %s", partner.ID, failing.ID, m.ID)
	}

	toFailing, err := NextRequestStatus(failing.Status, ev)
	if err != nil {
		return Unit{}, fmt.Errorf("fail %s: %w", failing.ID, err)
	}
	toPartner, err := NextRequestStatus(partner.Status, EventPartnerFailed)
	if err != nil {
		return Unit{}, fmt.Errorf("deny %s: %w", partner.ID, err)
	}
	toMatch, err := NextMatchStatus(m.Status, EventFailed)
	if err != nil {
		return Unit{}, fmt.Errorf("fail match %s: %w", m.ID, err)
	}

	return Unit{
		At:    at,
		Match: &MatchChange{ID: m.ID, From: m.Status, To: toMatch},
		Requests: []RequestChange{
			{ID: failing.ID, From: failing.Status, To: toFailing},
			{ID: partner.ID, From: partner.Status, To: toPartner},
		},
	}, nil
}

// AcceptUnit builds the unit recording r's acceptance of match m. When the
// partner has already accepted, the same unit completes the match and
// confirms both requests; completed reports that case.
func AcceptUnit(m Match, r Request, partner Request, at time.Time) (u Unit, completed bool, err error) {
	side := m.SideOf(r.ID)
	if side == SideNone {
		return Unit{}, false, fmt.Errorf("request %s is not part of match %s", r.ID, m.ID)
	}
	if other, _ := m.Other(r.ID); other != partner.ID {
		return Unit{}, false, fmt.Errorf("request %s is not the counterpart of %s in match %s", partner.ID, r.ID, m.ID)
	}
	if m.Status != MatchInProgress {
		return Unit{}, false, &TransitionError{Entity: "match", From: string(m.Status), Event: "accept"}
	}
	if r.Status != StatusPaired {
		return Unit{}, false, &TransitionError{Entity: "request", From: string(r.Status), Event: "accept"}
	}
	if m.Accepted(side) {
		return Unit{}, false, ErrAlreadyAccepted
	}

	partnerSide := SideA
	if side == SideA {
		partnerSide = SideB
	}
	if !m.Accepted(partnerSide) {
		return Unit{
			At:    at,
			Match: &MatchChange{ID: m.ID, From: m.Status, To: m.Status, Accept: side},
			Requests: []RequestChange{
				{ID: r.ID, From: r.Status, To: r.Status},
			},
		}, false, nil
	}

	toMatch, err := NextMatchStatus(m.Status, EventCompleted)
	if err != nil {
		return Unit{}, false, err
	}
	toR, err := NextRequestStatus(r.Status, EventConfirmed)
	if err != nil {
		return Unit{}, false, fmt.Errorf("confirm %s: %w", r.ID, err)
	}
	toPartner, err := NextRequestStatus(partner.Status, EventConfirmed)
	if err != nil {
		return Unit{}, false, fmt.Errorf("confirm %s: %w", partner.ID, err)
	}

	return Unit{
		At:    at,
		Match: &MatchChange{ID: m.ID, From: m.Status, To: toMatch, Accept: side},
		Requests: []RequestChange{
			{ID: r.ID, From: r.Status, To: toR},
			{ID: partner.ID, From: partner.Status, To: toPartner},
		},
	}, true, nil
}

// WithdrawWaitingUnit builds the unit for an owner cancelling a request
// that has not been paired yet.
func WithdrawWaitingUnit(r Request, at time.Time) (Unit, error) {
	if r.Status != StatusWaiting {
		return Unit{}, &TransitionError{Entity: "request", From: string(r.Status), Event: string(EventWithdrew)}
	}
	to, err := NextRequestStatus(r.Status, EventWithdrew)
	if err != nil {
		return Unit{}, err
	}
	return Unit{
		At:       at,
		Requests: []RequestChange{{ID: r.ID, From: r.Status, To: to}},
	}, nil
}
