package domain

import "time"

// Session represents one open conversation between a user and a staff thread
type Session struct {
	UserID         UserID
	ThreadID       ThreadID
	CreatedAt      time.Time // Zero when restored from a snapshot without ledger data
	LastActivityAt time.Time
}

// IdleFor returns how long the session has been without activity at now
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// IsIdle reports whether the session has been inactive for longer than threshold
func (s *Session) IsIdle(now time.Time, threshold time.Duration) bool {
	return s.IdleFor(now) > threshold
}

// Touch updates the last activity time
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}
