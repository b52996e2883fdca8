package repo

import (
	"context"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

// TicketRepo is the ticket ledger interface
// Responsible for ticket metadata persistence (SQLite)
type TicketRepo interface {
	// Open records a newly opened ticket
	Open(ctx context.Context, ticket *domain.Ticket) error

	// Get returns the ticket for a thread, nil if unknown
	Get(ctx context.Context, threadID domain.ThreadID) (*domain.Ticket, error)

	// SetMessages stores the card and notification message ids
	SetMessages(ctx context.Context, threadID domain.ThreadID, card, notice domain.MessageID) error

	// Close marks the ticket closed
	Close(ctx context.Context, threadID domain.ThreadID, closedAt time.Time, by domain.ClosedBy, outcome domain.Outcome) error

	// ListOpen lists tickets that were never closed
	ListOpen(ctx context.Context) ([]*domain.Ticket, error)
}

// EventPublisher publishes ticket lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, event domain.TicketEvent) error
	Close() error
}
