package usecase

import (
	"sync"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

// userLocks serializes work per user. Entries are dropped once no goroutine
// holds or waits for them.
type userLocks struct {
	mu    sync.Mutex
	locks map[domain.UserID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[domain.UserID]*userLock)}
}

// lock blocks until the user's lock is held and returns the unlock func
func (l *userLocks) lock(userID domain.UserID) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
