package engine

import (
	"context"
	"sync"
)

// Lock names, one per procedure.
const (
	LockMatching  = "matching"
	LockReconcile = "reconcile"
)

// Locker grants per-procedure mutual exclusion for the duration of a tick.
// Acquire never waits: acquired is false when someone else holds name.
//
// MutexLocker covers a single process; store.LeaseLocker covers several
// processes sharing one database.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), acquired bool, err error)
}

// MutexLocker is an in-process Locker with one mutex per name.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMutexLocker creates an empty in-process locker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*sync.Mutex)}
}

// Acquire try-locks the mutex for name.
func (l *MutexLocker) Acquire(_ context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, false, nil
	}
	return m.Unlock, true, nil
}
