package repo

import (
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

// SessionRepo is the session registry interface
// Responsible for the user<->thread bindings, message links and activity
// times. Implementations are in-memory and safe for concurrent use; Persist
// writes the current state to durable storage.
type SessionRepo interface {
	// OpenOrGet returns the user's thread, or isNew=true when the caller
	// must create a thread and Bind it
	OpenOrGet(userID domain.UserID) (threadID domain.ThreadID, isNew bool)

	// Bind registers a new session, *domain.ConflictError on collision
	Bind(userID domain.UserID, threadID domain.ThreadID, createdAt time.Time) error

	// LookupByThread returns the user bound to a thread, domain.ErrNotFound if none
	LookupByThread(threadID domain.ThreadID) (domain.UserID, error)

	// LookupThread returns the thread bound to a user, domain.ErrNotFound if none
	LookupThread(userID domain.UserID) (domain.ThreadID, error)

	// Touch updates the thread's last activity, no-op for unknown threads
	Touch(threadID domain.ThreadID)

	// CloseByUser removes the user's session and purges its links
	CloseByUser(userID domain.UserID) (*domain.Session, error)

	// CloseByThread removes the thread's session and purges its links
	CloseByThread(threadID domain.ThreadID) (*domain.Session, error)

	// ListOpen returns a copy of all open sessions ordered by thread id
	ListOpen() []domain.Session

	// IdleSince lists threads idle for longer than threshold
	IdleSince(threshold time.Duration) []domain.ThreadID

	// LinkMessages records a MessageLink tagged with its thread
	LinkMessages(link domain.MessageLink)

	// ResolveGroupToUser maps a staff-side message id to the user side
	ResolveGroupToUser(groupMsgID domain.MessageID) (domain.MessageID, bool)

	// ResolveUserToGroup maps a user-side message id to the staff side
	ResolveUserToGroup(userMsgID domain.MessageID) (domain.MessageID, bool)

	// Persist writes the current state to the snapshot file
	Persist() error
}
