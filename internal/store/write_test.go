package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sejongpeer/studybuddy/internal/buddy"
)

// seedPair stores two WAITING requests and pairs them into match-1.
func seedPair(t *testing.T, s *Store) (buddy.Match, buddy.Request, buddy.Request) {
	t.Helper()
	ctx := context.Background()

	a := createTestRequest("r1", "m1", 0)
	b := createTestRequest("r2", "m2", 1)
	require.NoError(t, s.InsertRequest(ctx, a))
	require.NoError(t, s.InsertRequest(ctx, b))

	u, err := buddy.PairUnit("match-1", a, b, base.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Apply(ctx, u))

	m, err := s.GetMatch(ctx, "match-1")
	require.NoError(t, err)
	a, err = s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	b, err = s.GetRequest(ctx, "r2")
	require.NoError(t, err)
	return m, a, b
}

func TestApply_Pairing(t *testing.T) {
	s := createTestStore(t)
	m, a, b := seedPair(t, s)

	assert.Equal(t, "r1", m.RequestA)
	assert.Equal(t, "r2", m.RequestB)
	assert.Equal(t, buddy.MatchInProgress, m.Status)
	assert.False(t, m.AcceptedA)
	assert.False(t, m.AcceptedB)

	for _, r := range []buddy.Request{a, b} {
		assert.Equal(t, buddy.StatusPaired, r.Status)
		assert.Equal(t, base.Add(time.Hour), r.UpdatedAt)
	}
	assert.Equal(t, base, a.CreatedAt, "created_at must not change")
}

func TestApply_PairingRollsBackOnStaleRequest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := createTestRequest("r1", "m1", 0)
	b := createTestRequest("r2", "m2", 1)
	require.NoError(t, s.InsertRequest(ctx, a))
	require.NoError(t, s.InsertRequest(ctx, b))

	// b is withdrawn after the pairing decision was made.
	wu, err := buddy.WithdrawWaitingUnit(b, base.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.Apply(ctx, wu))

	u, err := buddy.PairUnit("match-1", a, b, base.Add(time.Hour))
	require.NoError(t, err)
	err = s.Apply(ctx, u)
	assert.True(t, errors.Is(err, buddy.ErrStaleState))

	// Nothing from the unit survived.
	_, err = s.GetMatch(ctx, "match-1")
	assert.True(t, errors.Is(err, buddy.ErrNotFound))

	gotA, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, buddy.StatusWaiting, gotA.Status)
	assert.Equal(t, base, gotA.UpdatedAt)
}

func TestApply_FailUnit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	m, a, b := seedPair(t, s)

	at := base.Add(30 * time.Hour)
	u, err := buddy.FailUnit(m, a, buddy.EventTimedOut, b, at)
	require.NoError(t, err)
	require.NoError(t, s.Apply(ctx, u))

	gotM, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, buddy.MatchFailed, gotM.Status)
	assert.Equal(t, at, gotM.UpdatedAt)

	gotA, err := s.GetRequest(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, buddy.StatusRejected, gotA.Status)

	gotB, err := s.GetRequest(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, buddy.StatusDenied, gotB.Status)

	// Applying the same unit again must not double-apply.
	err = s.Apply(ctx, u)
	assert.True(t, errors.Is(err, buddy.ErrStaleState))
}

func TestApply_FailUnitRollsBackWhenMatchAlreadyResolved(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	m, a, b := seedPair(t, s)

	_, err := s.db.Exec(`UPDATE buddy_matches SET status = 'COMPLETED' WHERE id = ?`, m.ID)
	require.NoError(t, err)

	u, err := buddy.FailUnit(m, a, buddy.EventTimedOut, b, base.Add(30*time.Hour))
	require.NoError(t, err)
	assert.True(t, errors.Is(s.Apply(ctx, u), buddy.ErrStaleState))

	// Request statuses are untouched because the match guard failed first.
	for _, id := range []string{a.ID, b.ID} {
		r, err := s.GetRequest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, buddy.StatusPaired, r.Status)
	}
}

func TestApply_Acceptance(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	m, a, b := seedPair(t, s)

	u, completed, err := buddy.AcceptUnit(m, a, b, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, completed)
	require.NoError(t, s.Apply(ctx, u))

	m, err = s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, m.AcceptedA)
	assert.False(t, m.AcceptedB)

	a, err = s.GetRequest(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, buddy.StatusPaired, a.Status)
	assert.Equal(t, base.Add(2*time.Hour), a.UpdatedAt)

	// Replaying the first acceptance is rejected by the accepted_a guard.
	assert.True(t, errors.Is(s.Apply(ctx, u), buddy.ErrStaleState))

	u, completed, err = buddy.AcceptUnit(m, b, a, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, completed)
	require.NoError(t, s.Apply(ctx, u))

	m, err = s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, buddy.MatchCompleted, m.Status)
	assert.True(t, m.AcceptedA)
	assert.True(t, m.AcceptedB)

	for _, id := range []string{a.ID, b.ID} {
		r, err := s.GetRequest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, buddy.StatusConfirmed, r.Status)
	}
}

func TestApply_RejectsInvalidUnit(t *testing.T) {
	s := createTestStore(t)

	err := s.Apply(context.Background(), buddy.Unit{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, buddy.ErrStaleState))
}
