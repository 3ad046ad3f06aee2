package subscription

import "sync"

// tenantLocks serializes transitions per tenant. Entries are dropped once
// nobody holds or waits for them.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

func (l *tenantLocks) lock(tenantID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*tenantLock)
	}
	tl, ok := l.locks[tenantID]
	if !ok {
		tl = &tenantLock{}
		l.locks[tenantID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, tenantID)
		}
		l.mu.Unlock()
	}
}
