package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sejongpeer/studybuddy/internal/buddy"
)

const requestColumns = `id, owner, contact, scope, college, department, status, created_at, updated_at`

const matchColumns = `id, request_a, request_b, status, accepted_a, accepted_b, created_at, updated_at`

// InsertRequest stores a new request.
// Returns buddy.ErrActiveRequestExists if the owner already holds a WAITING
// or PAIRED request.
func (s *Store) InsertRequest(ctx context.Context, r buddy.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buddy_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Owner,
		r.Contact,
		string(r.Scope),
		r.College,
		r.Department,
		string(r.Status),
		toNanos(r.CreatedAt),
		toNanos(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert request %s: %w", r.ID, buddy.ErrActiveRequestExists)
		}
		return fmt.Errorf("insert request %s: %w", r.ID, err)
	}
	return nil
}

// GetRequest retrieves a single request by ID.
// Returns buddy.ErrNotFound if it does not exist.
func (s *Store) GetRequest(ctx context.Context, id string) (buddy.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM buddy_requests
		WHERE id = ?
	`, id)

	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return buddy.Request{}, fmt.Errorf("request %s: %w", id, buddy.ErrNotFound)
	}
	if err != nil {
		return buddy.Request{}, fmt.Errorf("get request %s: %w", id, err)
	}
	return r, nil
}

// ListRequestsByStatus returns all requests in the given status, oldest first.
// Ties on created_at are broken by id so results are deterministic.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRequestsByStatus(ctx context.Context, status buddy.RequestStatus) ([]buddy.Request, error) {
	return s.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM buddy_requests
		WHERE status = ?
		ORDER BY created_at ASC, length(id) ASC, id COLLATE BINARY ASC
	`, string(status))
}

// ListRequestsByOwner returns every request the owner ever made, oldest first.
func (s *Store) ListRequestsByOwner(ctx context.Context, owner string) ([]buddy.Request, error) {
	return s.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM buddy_requests
		WHERE owner = ?
		ORDER BY created_at ASC, length(id) ASC, id COLLATE BINARY ASC
	`, owner)
}

// ListRequests returns every request, oldest first.
func (s *Store) ListRequests(ctx context.Context) ([]buddy.Request, error) {
	return s.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM buddy_requests
		ORDER BY created_at ASC, length(id) ASC, id COLLATE BINARY ASC
	`)
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]buddy.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	requests := []buddy.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}

	return requests, nil
}

// GetMatch retrieves a single match by ID.
// Returns buddy.ErrNotFound if it does not exist.
func (s *Store) GetMatch(ctx context.Context, id string) (buddy.Match, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+matchColumns+`
		FROM buddy_matches
		WHERE id = ?
	`, id)

	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return buddy.Match{}, fmt.Errorf("match %s: %w", id, buddy.ErrNotFound)
	}
	if err != nil {
		return buddy.Match{}, fmt.Errorf("get match %s: %w", id, err)
	}
	return m, nil
}

// FindInProgressMatches returns every IN_PROGRESS match the request takes
// part in. More than one result means the data is inconsistent; callers
// decide what to do about it.
func (s *Store) FindInProgressMatches(ctx context.Context, requestID string) ([]buddy.Match, error) {
	return s.queryMatches(ctx, `
		SELECT `+matchColumns+`
		FROM buddy_matches
		WHERE status = ? AND (request_a = ? OR request_b = ?)
		ORDER BY created_at ASC, length(id) ASC, id COLLATE BINARY ASC
	`, string(buddy.MatchInProgress), requestID, requestID)
}

// FindInProgressByParticipant returns the single IN_PROGRESS match containing
// the request. Returns buddy.ErrNotFound when there is none and an error
// when there are several.
func (s *Store) FindInProgressByParticipant(ctx context.Context, requestID string) (buddy.Match, error) {
	matches, err := s.FindInProgressMatches(ctx, requestID)
	if err != nil {
		return buddy.Match{}, err
	}
	switch len(matches) {
	case 0:
		return buddy.Match{}, fmt.Errorf("in-progress match for %s: %w", requestID, buddy.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return buddy.Match{}, fmt.Errorf("request %s has %d in-progress matches", requestID, len(matches))
	}
}

// ListMatches returns every match, oldest first.
func (s *Store) ListMatches(ctx context.Context) ([]buddy.Match, error) {
	return s.queryMatches(ctx, `
		SELECT `+matchColumns+`
		FROM buddy_matches
		ORDER BY created_at ASC, length(id) ASC, id COLLATE BINARY ASC
	`)
}

func (s *Store) queryMatches(ctx context.Context, query string, args ...any) ([]buddy.Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	matches := []buddy.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}

	return matches, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (buddy.Request, error) {
	var r buddy.Request
	var scope, status string
	var createdAt, updatedAt int64

	if err := sc.Scan(
		&r.ID, &r.Owner, &r.Contact, &scope, &r.College, &r.Department,
		&status, &createdAt, &updatedAt,
	); err != nil {
		return buddy.Request{}, err
	}

	r.Scope = buddy.Scope(scope)
	r.Status = buddy.RequestStatus(status)
	r.CreatedAt = fromNanos(createdAt)
	r.UpdatedAt = fromNanos(updatedAt)
	return r, nil
}

func scanMatch(sc scanner) (buddy.Match, error) {
	var m buddy.Match
	var status string
	var acceptedA, acceptedB bool
	var createdAt, updatedAt int64

	if err := sc.Scan(
		&m.ID, &m.RequestA, &m.RequestB, &status, &acceptedA, &acceptedB,
		&createdAt, &updatedAt,
	); err != nil {
		return buddy.Match{}, err
	}

	m.Status = buddy.MatchStatus(status)
	m.AcceptedA = acceptedA
	m.AcceptedB = acceptedB
	m.CreatedAt = fromNanos(createdAt)
	m.UpdatedAt = fromNanos(updatedAt)
	return m, nil
}
