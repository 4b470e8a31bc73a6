package buddy

import "time"

// RequestStatus is the lifecycle state of a Request.
type RequestStatus string

const (
	// StatusWaiting means the request is seeking a partner.
	StatusWaiting RequestStatus = "WAITING"

	// StatusPaired means the request is in an IN_PROGRESS match awaiting a response.
	StatusPaired RequestStatus = "PAIRED"

	// StatusConfirmed means both sides accepted the match.
	StatusConfirmed RequestStatus = "CONFIRMED"

	// StatusRejected means the owner withdrew or timed out.
	StatusRejected RequestStatus = "REJECTED"

	// StatusDenied means the counterpart withdrew or timed out.
	StatusDenied RequestStatus = "DENIED"
)

// RequestStatuses lists every request status in lifecycle order.
var RequestStatuses = []RequestStatus{
	StatusWaiting,
	StatusPaired,
	StatusConfirmed,
	StatusRejected,
	StatusDenied,
}

// Active reports whether the status counts towards the one-active-request-per-owner rule.
func (s RequestStatus) Active() bool {
	return s == StatusWaiting || s == StatusPaired
}

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusRejected, StatusDenied:
		return true
	}
	return false
}

// Valid reports whether s is one of the known request statuses.
func (s RequestStatus) Valid() bool {
	for _, known := range RequestStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// MatchStatus is the lifecycle state of a Match.
type MatchStatus string

const (
	MatchInProgress MatchStatus = "IN_PROGRESS"
	MatchCompleted  MatchStatus = "COMPLETED"
	MatchFailed     MatchStatus = "FAILED"
)

// MatchStatuses lists every match status.
var MatchStatuses = []MatchStatus{MatchInProgress, MatchCompleted, MatchFailed}

// Terminal reports whether no further transition is possible.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchFailed
}

// Request is one member's request to be matched with a study buddy.
type Request struct {
	ID         string
	Owner      string
	Contact    string // phone number used for notifications
	Scope      Scope
	College    string
	Department string
	Status     RequestStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Match pairs two requests.
type Match struct {
	ID        string
	RequestA  string
	RequestB  string
	Status    MatchStatus
	AcceptedA bool
	AcceptedB bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Side identifies one participant slot of a Match.
type Side int

const (
	SideNone Side = iota
	SideA
	SideB
)

// SideOf returns which slot requestID occupies, or SideNone.
func (m Match) SideOf(requestID string) Side {
	switch requestID {
	case m.RequestA:
		return SideA
	case m.RequestB:
		return SideB
	}
	return SideNone
}

// Other returns the counterpart of requestID. ok is false when requestID
// does not participate in the match.
func (m Match) Other(requestID string) (other string, ok bool) {
	switch m.SideOf(requestID) {
	case SideA:
		return m.RequestB, true
	case SideB:
		return m.RequestA, true
	}
	return "", false
}

// Accepted reports whether the given side has accepted.
func (m Match) Accepted(side Side) bool {
	switch side {
	case SideA:
		return m.AcceptedA
	case SideB:
		return m.AcceptedB
	}
	return false
}
