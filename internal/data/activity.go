package data

import (
	"sort"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

// ActivityTracker stores the last activity time per thread. Not synchronized.
type ActivityTracker struct {
	last map[domain.ThreadID]time.Time
}

// NewActivityTracker creates an empty tracker
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{last: make(map[domain.ThreadID]time.Time)}
}

// Touch records activity on thread at t
func (a *ActivityTracker) Touch(thread domain.ThreadID, t time.Time) {
	a.last[thread] = t
}

// Last returns the last activity time of thread
func (a *ActivityTracker) Last(thread domain.ThreadID) (time.Time, bool) {
	t, ok := a.last[thread]
	return t, ok
}

// Forget drops the thread
func (a *ActivityTracker) Forget(thread domain.ThreadID) {
	delete(a.last, thread)
}

// IdleSince lists threads whose last activity is more than threshold before
// now, oldest first
func (a *ActivityTracker) IdleSince(now time.Time, threshold time.Duration) []domain.ThreadID {
	var idle []domain.ThreadID
	for thread, t := range a.last {
		if now.Sub(t) > threshold {
			idle = append(idle, thread)
		}
	}
	sort.Slice(idle, func(i, j int) bool {
		return a.last[idle[i]].Before(a.last[idle[j]])
	})
	return idle
}
