package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"

	"github.com/sejongpeer/studybuddy/internal/buddy"
	"github.com/sejongpeer/studybuddy/internal/notify"
	"github.com/sejongpeer/studybuddy/internal/store"
	"github.com/sejongpeer/studybuddy/internal/testutil"
)

func TestExecuteMatching_ThreeRequestScenario(t *testing.T) {
	f := newFixture(t)

	p1 := f.submit("p1", buddy.ScopeAll, "CollegeX", "Math")
	p2 := f.submit("p2", buddy.ScopeSameCollege, "CollegeX", "Physics")
	p3 := f.submit("p3", buddy.ScopeSameCollege, "CollegeY", "Biology")

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, MatchingReport{Considered: 3, Paired: 1}, report)

	ms := f.matches()
	require.Len(t, ms, 1)
	assert.Equal(t, p1.ID, ms[0].RequestA)
	assert.Equal(t, p2.ID, ms[0].RequestB)
	assert.Equal(t, buddy.MatchInProgress, ms[0].Status)

	assert.Equal(t, buddy.StatusPaired, f.status(p1.ID))
	assert.Equal(t, buddy.StatusPaired, f.status(p2.ID))
	assert.Equal(t, p3, f.request(p3.ID), "p3 must be untouched")

	assert.ElementsMatch(t, []testutil.Sent{
		{MemberID: "p1", Template: notify.MatchFound},
		{MemberID: "p2", Template: notify.MatchFound},
	}, f.gw.Sent())
}

func TestExecuteMatching_FIFO(t *testing.T) {
	f := newFixture(t)

	// r1 only takes its own college, so it skips r2 and takes r3.
	// r2 is older than r4 and gets r4.
	r1 := f.submit("m1", buddy.ScopeSameCollege, "Engineering", "CS")
	r2 := f.submit("m2", buddy.ScopeAll, "Business", "Finance")
	r3 := f.submit("m3", buddy.ScopeAll, "Engineering", "EE")
	r4 := f.submit("m4", buddy.ScopeAll, "Law", "Law")
	r5 := f.submit("m5", buddy.ScopeAll, "Arts", "Music")

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Paired)

	ms := f.matches()
	require.Len(t, ms, 2)
	pairs := map[string]string{}
	for _, m := range ms {
		pairs[m.RequestA] = m.RequestB
	}
	assert.Equal(t, r3.ID, pairs[r1.ID])
	assert.Equal(t, r4.ID, pairs[r2.ID])
	assert.Equal(t, buddy.StatusWaiting, f.status(r5.ID))
}

func TestExecuteMatching_RespectsCompatibility(t *testing.T) {
	f := newFixture(t)

	a := f.submit("m1", buddy.ScopeSameDepartment, "Engineering", "CS")
	b := f.submit("m2", buddy.ScopeSameDepartment, "Engineering", "EE")
	c := f.submit("m3", buddy.ScopeSameCollege, "Business", "CS")

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Paired)
	assert.Empty(t, f.matches())

	for _, r := range []buddy.Request{a, b, c} {
		assert.Equal(t, buddy.StatusWaiting, f.status(r.ID))
	}
	assert.Empty(t, f.gw.Sent())
}

func TestExecuteMatching_NormalizesAffiliation(t *testing.T) {
	f := newFixture(t)

	nfc := norm.NFC.String("공과대학")
	nfd := norm.NFD.String(nfc)
	require.NotEqual(t, nfc, nfd)

	f.submit("m1", buddy.ScopeSameCollege, nfc, "CS")
	f.submit("m2", buddy.ScopeCollege, nfd+" ", "EE")

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paired)
}

func TestExecuteMatching_NeverPairsOwnerWithItself(t *testing.T) {
	f := newFixture(t)

	// Simulate data written before the one-active-request rule existed.
	f.exec(`DROP INDEX idx_requests_one_active_per_owner`)
	f.insert("old-1", "m1")
	f.insert("old-2", "m1")

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, MatchingReport{Considered: 1, Excluded: 1}, report)
	assert.Empty(t, f.matches())
}

func TestExecuteMatching_Exclusivity(t *testing.T) {
	f := newFixture(t)
	a, _, _ := f.pairTwo()

	// m1 already holds a PAIRED request; a WAITING one from legacy data must
	// not be paired again.
	f.exec(`DROP INDEX idx_requests_one_active_per_owner`)
	f.insert("legacy", a.Owner)
	f.insert("fresh", "m3")

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, MatchingReport{Considered: 1, Excluded: 1}, report)
	assert.Len(t, f.matches(), 1)

	// Every request is in at most one IN_PROGRESS match.
	count := map[string]int{}
	for _, m := range f.matches() {
		if m.Status == buddy.MatchInProgress {
			count[m.RequestA]++
			count[m.RequestB]++
		}
	}
	for id, n := range count {
		assert.Equal(t, 1, n, "request %s", id)
	}
}

func TestExecuteMatching_SecondTickIsNoOp(t *testing.T) {
	f := newFixture(t)
	a, b, m := f.pairTwo()

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, MatchingReport{}, report)

	assert.Equal(t, a, f.request(a.ID))
	assert.Equal(t, b, f.request(b.ID))
	assert.Equal(t, m, f.match(m.ID))
	assert.Empty(t, f.gw.Sent())
}

func TestExecuteMatching_FailedCommitExcludesOnlyThatPair(t *testing.T) {
	boom := errors.New("disk full")
	var faulty *faultyStore
	f := newFixtureWith(t, func(s *store.Store) Store {
		faulty = &faultyStore{Store: s, fail: func(u buddy.Unit) error {
			if touches(u, "req-1") {
				return boom
			}
			return nil
		}}
		return faulty
	})

	r1 := f.submit("m1", buddy.ScopeAll, "Engineering", "CS")
	r2 := f.submit("m2", buddy.ScopeAll, "Engineering", "CS")
	r3 := f.submit("m3", buddy.ScopeAll, "Engineering", "CS")
	r4 := f.submit("m4", buddy.ScopeAll, "Engineering", "CS")

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, MatchingReport{Considered: 4, Paired: 1, Failed: 1}, report)

	// r2 is not re-offered to r3 in the same tick.
	assert.Equal(t, buddy.StatusWaiting, f.status(r1.ID))
	assert.Equal(t, buddy.StatusWaiting, f.status(r2.ID))
	assert.Equal(t, buddy.StatusPaired, f.status(r3.ID))
	assert.Equal(t, buddy.StatusPaired, f.status(r4.ID))

	// The next tick retries the failed pair.
	faulty.fail = func(buddy.Unit) error { return nil }
	report, err = f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paired)
	assert.Equal(t, buddy.StatusPaired, f.status(r1.ID))
	assert.Equal(t, buddy.StatusPaired, f.status(r2.ID))
}

func TestExecuteMatching_ConcurrentWithdrawFreesPartner(t *testing.T) {
	var f *fixture
	withdrawn := false
	f = newFixtureWith(t, func(s *store.Store) Store {
		return &faultyStore{Store: s, fail: func(u buddy.Unit) error {
			// req-1 is withdrawn between the scan and the pair commit.
			if !withdrawn && touches(u, "req-1") {
				withdrawn = true
				f.exec(`UPDATE buddy_requests SET status = 'REJECTED' WHERE id = 'req-1'`)
			}
			return nil
		}}
	})

	r1 := f.submit("m1", buddy.ScopeAll, "Engineering", "CS")
	r2 := f.submit("m2", buddy.ScopeAll, "Engineering", "CS")
	r3 := f.submit("m3", buddy.ScopeAll, "Engineering", "CS")
	r4 := f.submit("m4", buddy.ScopeAll, "Engineering", "CS")

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, MatchingReport{Considered: 4, Paired: 1, Failed: 1}, report)

	// r2 lost its partner but is still WAITING, so r3 gets it this tick.
	assert.Equal(t, buddy.StatusRejected, f.status(r1.ID))
	assert.Equal(t, buddy.StatusPaired, f.status(r2.ID))
	assert.Equal(t, buddy.StatusPaired, f.status(r3.ID))
	assert.Equal(t, buddy.StatusWaiting, f.status(r4.ID))

	ms := f.matches()
	require.Len(t, ms, 1)
	assert.Equal(t, r2.ID, ms[0].RequestA)
	assert.Equal(t, r3.ID, ms[0].RequestB)
}

func TestExecuteMatching_NotificationFailureKeepsMatch(t *testing.T) {
	f := newFixture(t)
	f.gw.FailFor["m1"] = errors.New("gateway down")

	a := f.submit("m1", buddy.ScopeAll, "Engineering", "CS")
	b := f.submit("m2", buddy.ScopeAll, "Engineering", "CS")

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paired)
	assert.Equal(t, buddy.StatusPaired, f.status(a.ID))
	assert.Equal(t, buddy.StatusPaired, f.status(b.ID))
	assert.Len(t, f.gw.SentWith(notify.MatchFound), 2)
}

func TestExecuteMatching_TickInProgress(t *testing.T) {
	f := newFixture(t)
	f.submit("m1", buddy.ScopeAll, "Engineering", "CS")
	f.submit("m2", buddy.ScopeAll, "Engineering", "CS")

	release, ok, err := f.eng.locker.Acquire(f.ctx, LockMatching)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.eng.ExecuteMatching(f.ctx)
	assert.True(t, errors.Is(err, ErrTickInProgress))
	assert.Empty(t, f.matches(), "a refused tick must not read or write")

	release()
	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paired)
}

func TestExecuteMatching_EmptyPool(t *testing.T) {
	f := newFixture(t)

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, MatchingReport{}, report)
}

func TestExecuteMatching_TiesFollowSequenceOrder(t *testing.T) {
	f := newFixture(t)

	// Eleven requests created in the same instant: req-10 and req-11 must
	// not jump ahead of req-2.
	for i := 1; i <= 11; i++ {
		_, err := f.eng.Submit(f.ctx, NewRequest{Owner: fmt.Sprintf("m%d", i), Scope: string(buddy.ScopeAll)})
		require.NoError(t, err)
	}

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Paired)

	pairs := map[string]string{}
	for _, m := range f.matches() {
		pairs[m.RequestA] = m.RequestB
	}
	assert.Equal(t, map[string]string{
		"req-1": "req-2",
		"req-3": "req-4",
		"req-5": "req-6",
		"req-7": "req-8",
		"req-9": "req-10",
	}, pairs)
	assert.Equal(t, buddy.StatusWaiting, f.status("req-11"))
}

func TestCompareIDs(t *testing.T) {
	assert.Negative(t, compareIDs("req-2", "req-10"))
	assert.Positive(t, compareIDs("req-10", "req-9"))
	assert.Negative(t, compareIDs("req-10", "req-11"))
	assert.Zero(t, compareIDs("req-3", "req-3"))
}
