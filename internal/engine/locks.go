package engine

import "sync"

// sessionLocks serializes mutating operations per session. Mutations
// (append, analyze) take the write side; read-only backend calls that
// must not overlap a mutation (suggestions) take the read side, so they
// can run concurrently with each other but never with an append.
// Acquisition fails fast instead of queueing so a second caller on a
// busy session surfaces as a conflict rather than a stall behind a long
// generation.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.RWMutex)}
}

func (l *sessionLocks) get(sessionID string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.RWMutex{}
		l.locks[sessionID] = m
	}
	return m
}

// TryAcquire attempts to take the exclusive lock for sessionID without
// blocking. On success the returned release func must be called exactly
// once.
func (l *sessionLocks) TryAcquire(sessionID string) (func(), bool) {
	m := l.get(sessionID)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}

// TryAcquireShared attempts to take the shared lock for sessionID
// without blocking. It fails while an exclusive holder is active.
func (l *sessionLocks) TryAcquireShared(sessionID string) (func(), bool) {
	m := l.get(sessionID)
	if !m.TryRLock() {
		return nil, false
	}
	return m.RUnlock, true
}
