package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errLockTimeout = errors.New("timed out waiting for portfolio lock")

// lockTable hands out one exclusive lock per portfolio. Entries are
// reference counted and dropped when nobody holds or waits on them.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*portfolioLock
}

type portfolioLock struct {
	sem  chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uuid.UUID]*portfolioLock)}
}

// acquire waits up to timeout for the lock on id. The returned func
// releases it and must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, id uuid.UUID, timeout time.Duration) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &portfolioLock{sem: make(chan struct{}, 1)}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			t.unref(id, l)
		}, nil
	case <-timer.C:
		t.unref(id, l)
		return nil, errLockTimeout
	case <-ctx.Done():
		t.unref(id, l)
		return nil, ctx.Err()
	}
}

func (t *lockTable) unref(id uuid.UUID, l *portfolioLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
}

// size reports how many portfolios currently have a lock entry.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
