package ledger

import (
	"context"
	"sync"
)

// itemLocks hands out one exclusive lock per item ID. Entries are dropped
// once nobody holds or waits on them, so the map only grows with contention.
type itemLocks struct {
	mu    sync.Mutex
	locks map[int64]*itemLock
}

type itemLock struct {
	sem  chan struct{}
	refs int
}

func newItemLocks() *itemLocks {
	return &itemLocks{locks: make(map[int64]*itemLock)}
}

// acquire blocks until the lock for id is held or ctx is done. The returned
// func releases the lock and must be called exactly once.
func (l *itemLocks) acquire(ctx context.Context, id int64) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &itemLock{sem: make(chan struct{}, 1)}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.sem <- struct{}{}:
		return func() {
			<-lk.sem
			l.drop(id, lk)
		}, nil
	case <-ctx.Done():
		l.drop(id, lk)
		return nil, ctx.Err()
	}
}

func (l *itemLocks) drop(id int64, lk *itemLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

// size returns the number of tracked items.
func (l *itemLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
