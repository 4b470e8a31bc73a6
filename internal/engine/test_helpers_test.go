package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sejongpeer/studybuddy/internal/buddy"
	"github.com/sejongpeer/studybuddy/internal/store"
	"github.com/sejongpeer/studybuddy/internal/testutil"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fixture wires an engine to a real SQLite store, a fake clock and a
// recording gateway.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *store.Store
	clock *testutil.FakeClock
	gw    *testutil.RecordingGateway
	eng   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith builds the engine over wrap(store) when wrap is non-nil.
func newFixtureWith(t *testing.T, wrap func(*store.Store) Store) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var backend Store = s
	if wrap != nil {
		backend = wrap(s)
	}

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: s,
		clock: testutil.NewFakeClock(start),
		gw:    testutil.NewRecordingGateway(),
	}
	f.eng = New(backend,
		WithClock(f.clock),
		WithGateway(f.gw),
		WithIDGenerators(NewSequenceGenerator("req"), NewSequenceGenerator("match")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

// submit registers a request and moves the clock one minute forward so
// that submission order is creation order.
func (f *fixture) submit(owner string, scope buddy.Scope, college, dept string) buddy.Request {
	f.t.Helper()
	r, err := f.eng.Submit(f.ctx, NewRequest{
		Owner:      owner,
		Contact:    "010-1234-" + owner,
		Scope:      string(scope),
		College:    college,
		Department: dept,
	})
	require.NoError(f.t, err)
	f.clock.Advance(time.Minute)
	return r
}

// insert stores a WAITING request directly, bypassing Submit's checks.
func (f *fixture) insert(id, owner string) buddy.Request {
	f.t.Helper()
	now := f.clock.Now()
	r := buddy.Request{
		ID:         id,
		Owner:      owner,
		Contact:    "010-1234-" + owner,
		Scope:      buddy.ScopeAll,
		College:    "Engineering",
		Department: "CS",
		Status:     buddy.StatusWaiting,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(f.t, f.store.InsertRequest(f.ctx, r))
	f.clock.Advance(time.Minute)
	return r
}

func (f *fixture) request(id string) buddy.Request {
	f.t.Helper()
	r, err := f.store.GetRequest(f.ctx, id)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) status(id string) buddy.RequestStatus {
	f.t.Helper()
	return f.request(id).Status
}

func (f *fixture) match(id string) buddy.Match {
	f.t.Helper()
	m, err := f.store.GetMatch(f.ctx, id)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) matches() []buddy.Match {
	f.t.Helper()
	ms, err := f.store.ListMatches(f.ctx)
	require.NoError(f.t, err)
	return ms
}

func (f *fixture) exec(query string, args ...any) {
	f.t.Helper()
	_, err := f.store.DB().Exec(query, args...)
	require.NoError(f.t, err)
}

// pairTwo submits two ALL requests and runs one matching tick.
func (f *fixture) pairTwo() (a, b buddy.Request, m buddy.Match) {
	f.t.Helper()
	a = f.submit("m1", buddy.ScopeAll, "Engineering", "CS")
	b = f.submit("m2", buddy.ScopeAll, "Engineering", "CS")

	report, err := f.eng.ExecuteMatching(f.ctx)
	require.NoError(f.t, err)
	require.Equal(f.t, 1, report.Paired)

	ms := f.matches()
	require.Len(f.t, ms, 1)
	f.gw.Reset()
	return f.request(a.ID), f.request(b.ID), ms[0]
}

// faultyStore fails Apply for units accepted by fail.
type faultyStore struct {
	*store.Store
	fail func(u buddy.Unit) error
}

func (s *faultyStore) Apply(ctx context.Context, u buddy.Unit) error {
	if err := s.fail(u); err != nil {
		return err
	}
	return s.Store.Apply(ctx, u)
}

func touches(u buddy.Unit, requestID string) bool {
	for _, rc := range u.Requests {
		if rc.ID == requestID {
			return true
		}
	}
	return false
}
