package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrTickInProgress is returned when another tick of the same procedure
	// holds the procedure lock.
	ErrTickInProgress = errors.New("tick already in progress")

	// ErrInvalidTimeout is returned by ReconcileStale for a non-positive timeout.
	ErrInvalidTimeout = errors.New("staleness timeout must be positive")

	// ErrNotOwner is returned when the acting member does not own the request.
	ErrNotOwner = errors.New("actor does not own the request")

	// ErrInvalidRequest is returned by Submit for a malformed new request.
	ErrInvalidRequest = errors.New("invalid request")
)

// ConsistencyError reports persisted data that violates the request/match
// invariants. The affected request is skipped; the data is never repaired
// by guessing.
type ConsistencyError struct {
	// Code identifies the violated invariant.
	Code ConsistencyErrorCode

	// Message is a human-readable description.
	Message string

	// RequestID identifies the request being resolved.
	RequestID string

	// MatchIDs lists the IN_PROGRESS matches found for the request.
	MatchIDs []string
}

// ConsistencyErrorCode categorizes consistency errors.
type ConsistencyErrorCode string

const (
	// ErrCodeNoInProgressMatch indicates a PAIRED request with no IN_PROGRESS match.
	ErrCodeNoInProgressMatch ConsistencyErrorCode = "NO_IN_PROGRESS_MATCH"

	// ErrCodeMultipleInProgressMatches indicates a request in several IN_PROGRESS matches.
	ErrCodeMultipleInProgressMatches ConsistencyErrorCode = "MULTIPLE_IN_PROGRESS_MATCHES"

	// ErrCodeCounterpartMissing indicates the match references a request that does not exist.
	ErrCodeCounterpartMissing ConsistencyErrorCode = "COUNTERPART_MISSING"

	// ErrCodeCounterpartNotPaired indicates the counterpart is not PAIRED.
	ErrCodeCounterpartNotPaired ConsistencyErrorCode = "COUNTERPART_NOT_PAIRED"
)

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	if len(e.MatchIDs) > 0 {
		return fmt.Sprintf("%s: %s (request=%s, matches=%v)", e.Code, e.Message, e.RequestID, e.MatchIDs)
	}
	return fmt.Sprintf("%s: %s (request=%s)", e.Code, e.Message, e.RequestID)
}

// IsConsistencyError returns true if the error is a consistency error.
// Uses errors.As to handle wrapped errors.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

func newMatchCountError(requestID string, matchIDs []string) *ConsistencyError {
	if len(matchIDs) == 0 {
		return &ConsistencyError{
			Code:      ErrCodeNoInProgressMatch,
			Message:   "paired request has no in-progress match",
			RequestID: requestID,
		}
	}
	return &ConsistencyError{
		Code:      ErrCodeMultipleInProgressMatches,
		Message:   fmt.Sprintf("request is in %d in-progress matches", len(matchIDs)),
		RequestID: requestID,
		MatchIDs:  matchIDs,
	}
}
