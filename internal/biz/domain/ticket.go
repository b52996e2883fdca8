package domain

import (
	"fmt"
	"time"
)

// ClosedBy names who triggered a ticket closure
type ClosedBy string

const (
	ClosedByUser    ClosedBy = "user"
	ClosedBySupport ClosedBy = "support"
	ClosedBySystem  ClosedBy = "system"
)

// Outcome is the final status of a ticket
type Outcome string

const (
	OutcomeResolved       Outcome = "resolved"
	OutcomeUnresolved     Outcome = "unresolved"
	OutcomeForciblyClosed Outcome = "forcibly-closed"
)

// Ticket is the ledger record of one thread's lifetime. It carries the
// profile data shown on the ticket card and the ids of the messages the bot
// posted when the thread was opened.
type Ticket struct {
	ThreadID         ThreadID
	UserID           UserID
	UserName         string
	Username         string // Without the leading @, empty if the user has none
	OpenedAt         time.Time
	OpeningMessageID MessageID // The user's message that opened the ticket
	CardMessageID    MessageID // Pinned card inside the thread
	NoticeMessageID  MessageID // Notification in the group's general area

	ClosedAt time.Time
	ClosedBy ClosedBy
	Outcome  Outcome
}

// IsOpen reports whether the ticket has not been closed yet
func (t *Ticket) IsOpen() bool {
	return t.ClosedAt.IsZero()
}

// FormatDuration renders d as "1h 0m 5s", "4m 2s" or "9s". Smaller units are
// always printed once a larger unit is non-zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
