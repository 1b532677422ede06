package treestore

import (
	"sync"
	"time"
)

const defaultJoinLockTTL = 30 * time.Second

// joinLocks is the in-flight set of the join coordinator: one slot per
// (invite code, user) pair. A lock older than the TTL counts as abandoned
// and may be re-acquired; the stale holder's release then becomes a no-op
// thanks to the token check.
type joinLocks struct {
	mu       sync.Mutex
	inflight map[string]time.Time
	ttl      time.Duration
	now      func() time.Time
}

func newJoinLocks(ttl time.Duration, now func() time.Time) *joinLocks {
	if ttl <= 0 {
		ttl = defaultJoinLockTTL
	}
	if now == nil {
		now = time.Now
	}
	return &joinLocks{
		inflight: make(map[string]time.Time),
		ttl:      ttl,
		now:      now,
	}
}

// acquire takes the lock for key. The returned token must be passed back to
// release; ok is false while another join for the same key is in flight.
func (l *joinLocks) acquire(key string) (token time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	nowAt := l.now()
	if at, held := l.inflight[key]; held && nowAt.Sub(at) < l.ttl {
		return time.Time{}, false
	}
	l.inflight[key] = nowAt
	return nowAt, true
}

func (l *joinLocks) release(key string, token time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if at, held := l.inflight[key]; held && at.Equal(token) {
		delete(l.inflight, key)
	}
}
