package buddy

// RequestEvent drives a Request status transition.
type RequestEvent string

const (
	EventPaired        RequestEvent = "paired"
	EventConfirmed     RequestEvent = "confirmed"
	EventTimedOut      RequestEvent = "timed_out"
	EventWithdrew      RequestEvent = "withdrew"
	EventPartnerFailed RequestEvent = "partner_failed"
)

// RequestEvents lists every request event.
var RequestEvents = []RequestEvent{
	EventPaired,
	EventConfirmed,
	EventTimedOut,
	EventWithdrew,
	EventPartnerFailed,
}

// MatchEvent drives a Match status transition.
type MatchEvent string

const (
	EventCompleted MatchEvent = "completed"
	EventFailed    MatchEvent = "failed"
)

// MatchEvents lists every match event.
var MatchEvents = []MatchEvent{EventCompleted, EventFailed}

// NextRequestStatus returns the status a request in current moves to on ev.
// Every (status, event) pair not listed below is rejected with a
// *TransitionError.
//
//	WAITING --paired--> PAIRED
//	WAITING --withdrew--> REJECTED
//	PAIRED  --confirmed--> CONFIRMED
//	PAIRED  --timed_out--> REJECTED
//	PAIRED  --withdrew--> REJECTED
//	PAIRED  --partner_failed--> DENIED
func NextRequestStatus(current RequestStatus, ev RequestEvent) (RequestStatus, error) {
	switch current {
	case StatusWaiting:
		switch ev {
		case EventPaired:
			return StatusPaired, nil
		case EventWithdrew:
			return StatusRejected, nil
		}
	case StatusPaired:
		switch ev {
		case EventConfirmed:
			return StatusConfirmed, nil
		case EventTimedOut, EventWithdrew:
			return StatusRejected, nil
		case EventPartnerFailed:
			return StatusDenied, nil
		}
	case StatusConfirmed, StatusRejected, StatusDenied:
		// terminal
	}
	return "", &TransitionError{Entity: "request", From: string(current), Event: string(ev)}
}

// NextMatchStatus returns the status a match in current moves to on ev.
func NextMatchStatus(current MatchStatus, ev MatchEvent) (MatchStatus, error) {
	if current == MatchInProgress {
		switch ev {
		case EventCompleted:
			return MatchCompleted, nil
		case EventFailed:
			return MatchFailed, nil
		}
	}
	return "", &TransitionError{Entity: "match", From: string(current), Event: string(ev)}
}
