package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// sessionLocks serializes turns within a session. Each session id maps
// to a one-slot channel semaphore; acquisition is bounded so a stuck
// turn surfaces as ErrSessionBusy instead of queueing forever.
//
// Entries are reference-counted and removed once the last holder or
// waiter is gone, so the map does not grow with session churn.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// acquire takes the session's turn lock, waiting at most timeout. The
// returned release function must be called exactly once.
func (l *sessionLocks) acquire(ctx context.Context, id string, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sl.sem <- struct{}{}:
		return func() {
			<-sl.sem
			l.unref(id, sl)
		}, nil
	case <-timer.C:
		l.unref(id, sl)
		return nil, fmt.Errorf("%w: turn lock not acquired within %s", ErrSessionBusy, timeout)
	case <-ctx.Done():
		l.unref(id, sl)
		return nil, fmt.Errorf("%w: %v", ErrSessionBusy, ctx.Err())
	}
}

func (l *sessionLocks) unref(id string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}
