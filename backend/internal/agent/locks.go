package agent

import (
	"context"
	"sync"
)

// mapLocks serializes turns per map id within this process.
// Entries are reference counted and removed when the last holder or waiter leaves.
type mapLocks struct {
	mu    sync.Mutex
	locks map[string]*mapLock
}

// mapLock is held while its 1-buffered channel is full
type mapLock struct {
	ch   chan struct{}
	refs int
}

func newMapLocks() *mapLocks {
	return &mapLocks{locks: make(map[string]*mapLock)}
}

// Lock blocks until the caller holds mapID or ctx is done, and returns the unlock func
func (l *mapLocks) Lock(ctx context.Context, mapID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[mapID]
	if !ok {
		lk = &mapLock{ch: make(chan struct{}, 1)}
		l.locks[mapID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(mapID, lk)
		return nil, ctx.Err()
	}

	return func() {
		<-lk.ch
		l.release(mapID, lk)
	}, nil
}

func (l *mapLocks) release(mapID string, lk *mapLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, mapID)
	}
}

func (l *mapLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
