package domain

import "time"

// Ticket lifecycle event types
const (
	EventTicketOpened = "helpdesk.ticket.opened.v1"
	EventTicketClosed = "helpdesk.ticket.closed.v1"
)

// TicketEvent is the payload published when a ticket opens or closes
type TicketEvent struct {
	Type          string    `json:"-"`
	CorrelationID string    `json:"-"`
	ThreadID      ThreadID  `json:"thread_id"`
	UserID        UserID    `json:"user_id"`
	OpenedAt      time.Time `json:"opened_at"`
	ClosedAt      time.Time `json:"closed_at,omitzero"`
	ClosedBy      ClosedBy  `json:"closed_by,omitempty"`
	Outcome       Outcome   `json:"outcome,omitempty"`
	DurationSec   int64     `json:"duration_sec,omitempty"`
}
