package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sejongpeer/studybuddy/internal/clock"
)

// LeaseLocker hands out named, expiring leases stored in SQLite. Several
// processes sharing one database file use it to make sure a procedure's tick
// runs in only one of them at a time.
//
// Every Acquire takes the lease under a fresh token, so a second Acquire of
// a held name fails even from the same holder. While held, the lease is
// renewed every third of its TTL until released. A lease whose holder died
// stops being renewed and may be taken over once it expires.
type LeaseLocker struct {
	store  *Store
	holder string
	ttl    time.Duration
	clock  clock.Clock
}

// NewLeaseLocker creates a locker that acquires leases on behalf of holder.
// ttl must be positive. clk may be nil, in which case real time is used.
func NewLeaseLocker(s *Store, holder string, ttl time.Duration, clk clock.Clock) *LeaseLocker {
	if clk == nil {
		clk = clock.Real{}
	}
	return &LeaseLocker{store: s, holder: holder, ttl: ttl, clock: clk}
}

// Acquire tries to take the lease called name without waiting.
// acquired is false when the lease is live, whoever holds it. The returned
// release function stops renewal and deletes the lease if it is still ours;
// calling it more than once is harmless.
func (l *LeaseLocker) Acquire(ctx context.Context, name string) (release func(), acquired bool, err error) {
	token := uuid.NewString()
	now := l.clock.Now()

	result, err := l.store.db.ExecContext(ctx, `
		INSERT INTO procedure_leases (name, holder, token, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE
		SET holder = excluded.holder, token = excluded.token, expires_at = excluded.expires_at
		WHERE procedure_leases.expires_at <= ?
	`, name, l.holder, token, toNanos(now.Add(l.ttl)), toNanos(now))
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", name, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: rows affected: %w", name, err)
	}
	if n == 0 {
		return nil, false, nil
	}

	ticker := l.clock.NewTicker(max(l.ttl/3, time.Millisecond))
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		defer ticker.Stop()
		l.renew(name, token, ticker, done)
	}()

	var once sync.Once
	release = func() {
		once.Do(func() {
			close(done)
			<-stopped
			// Background context: release must run even when the tick's
			// context was cancelled.
			_, _ = l.store.db.ExecContext(context.Background(), `
				DELETE FROM procedure_leases WHERE name = ? AND token = ?
			`, name, token)
		})
	}
	return release, true, nil
}

// renew pushes the lease's expiry forward on every tick until done is
// closed or the lease turns out to belong to someone else.
func (l *LeaseLocker) renew(name, token string, ticker clock.Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C():
		}

		result, err := l.store.db.ExecContext(context.Background(), `
			UPDATE procedure_leases SET expires_at = ?
			WHERE name = ? AND token = ?
		`, toNanos(l.clock.Now().Add(l.ttl)), name, token)
		if err != nil {
			slog.Default().Warn("failed to renew lease", "lease", name, "holder", l.holder, "error", err)
			continue
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			slog.Default().Error("lease lost while held", "lease", name, "holder", l.holder)
			return
		}
	}
}

// Holder returns the holder ID this locker acquires leases for.
func (l *LeaseLocker) Holder() string {
	return l.holder
}
