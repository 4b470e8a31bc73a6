package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sejongpeer/studybuddy/internal/buddy"
)

// Apply commits a unit atomically: the optional new match, the optional
// match change and every request change, or nothing at all.
//
// Every change is guarded by its expected From status. If any guard fails
// the transaction is rolled back and buddy.ErrStaleState is returned, so a
// unit built from a stale read can never partially apply.
func (s *Store) Apply(ctx context.Context, u buddy.Unit) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("apply unit: %w", err)
	}

	at := toNanos(u.At)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if m := u.NewMatch; m != nil {
			if err := insertMatch(ctx, tx, *m); err != nil {
				return err
			}
		}

		if mc := u.Match; mc != nil {
			if err := updateMatch(ctx, tx, *mc, at); err != nil {
				return err
			}
		}

		for _, rc := range u.Requests {
			if err := updateRequest(ctx, tx, rc, at); err != nil {
				return err
			}
		}

		return nil
	})
}

func insertMatch(ctx context.Context, tx *sql.Tx, m buddy.Match) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO buddy_matches (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID,
		m.RequestA,
		m.RequestB,
		string(m.Status),
		m.AcceptedA,
		m.AcceptedB,
		toNanos(m.CreatedAt),
		toNanos(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert match %s: %w", m.ID, err)
	}
	return nil
}

func updateMatch(ctx context.Context, tx *sql.Tx, mc buddy.MatchChange, at int64) error {
	query := `UPDATE buddy_matches SET status = ?, updated_at = ?`
	guard := ` WHERE id = ? AND status = ?`

	switch mc.Accept {
	case buddy.SideA:
		query += `, accepted_a = 1`
		guard += ` AND accepted_a = 0`
	case buddy.SideB:
		query += `, accepted_b = 1`
		guard += ` AND accepted_b = 0`
	}

	result, err := tx.ExecContext(ctx, query+guard, string(mc.To), at, mc.ID, string(mc.From))
	if err != nil {
		return fmt.Errorf("update match %s: %w", mc.ID, err)
	}
	return expectOneRow(result, "match", mc.ID)
}

func updateRequest(ctx context.Context, tx *sql.Tx, rc buddy.RequestChange, at int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE buddy_requests
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(rc.To), at, rc.ID, string(rc.From))
	if err != nil {
		return fmt.Errorf("update request %s: %w", rc.ID, err)
	}
	return expectOneRow(result, "request", rc.ID)
}

func expectOneRow(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %s: rows affected: %w", entity, id, err)
	}
	if n != 1 {
		return fmt.Errorf("update %s %s: %w", entity, id, buddy.ErrStaleState)
	}
	return nil
}
