package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// TicketLedger stores ticket records in SQLite
type TicketLedger struct {
	db *sql.DB
}

// NewTicketLedger opens (or creates) the ticket ledger at dbPath
func NewTicketLedger(dbPath string) (*TicketLedger, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			thread_id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			opened_at INTEGER NOT NULL,
			opening_msg_id INTEGER NOT NULL DEFAULT 0,
			card_msg_id INTEGER NOT NULL DEFAULT 0,
			notice_msg_id INTEGER NOT NULL DEFAULT 0,
			closed_at INTEGER NOT NULL DEFAULT 0,
			closed_by TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tickets_user_id ON tickets(user_id)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &TicketLedger{db: db}, nil
}

var _ repo.TicketRepo = (*TicketLedger)(nil)

const ticketColumns = `thread_id, user_id, user_name, username, opened_at, opening_msg_id,
	card_msg_id, notice_msg_id, closed_at, closed_by, outcome`

// Open records a new ticket. A thread id reused by the platform replaces the
// older row.
func (r *TicketLedger) Open(ctx context.Context, t *domain.Ticket) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '', '')
	`,
		int(t.ThreadID),
		string(t.UserID),
		t.UserName,
		t.Username,
		t.OpenedAt.Unix(),
		int(t.OpeningMessageID),
		int(t.CardMessageID),
		int(t.NoticeMessageID),
	)
	if err != nil {
		return fmt.Errorf("failed to save ticket: %w", err)
	}
	return nil
}

// Get returns the ticket for threadID, nil if unknown
func (r *TicketLedger) Get(ctx context.Context, threadID domain.ThreadID) (*domain.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE thread_id = ?
	`, int(threadID))

	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ticket: %w", err)
	}
	return t, nil
}

// SetMessages stores the card and notification message ids
func (r *TicketLedger) SetMessages(ctx context.Context, threadID domain.ThreadID, card, notice domain.MessageID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tickets SET card_msg_id = ?, notice_msg_id = ? WHERE thread_id = ?
	`, int(card), int(notice), int(threadID))
	if err != nil {
		return fmt.Errorf("failed to update ticket messages: %w", err)
	}
	return nil
}

// Close marks the ticket closed
func (r *TicketLedger) Close(ctx context.Context, threadID domain.ThreadID, closedAt time.Time, by domain.ClosedBy, outcome domain.Outcome) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tickets SET closed_at = ?, closed_by = ?, outcome = ? WHERE thread_id = ?
	`, closedAt.Unix(), string(by), string(outcome), int(threadID))
	if err != nil {
		return fmt.Errorf("failed to close ticket: %w", err)
	}
	return nil
}

// ListOpen lists tickets without a close record, oldest first
func (r *TicketLedger) ListOpen(ctx context.Context) ([]*domain.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE closed_at = 0
		ORDER BY opened_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// CloseDB closes the database connection
func (r *TicketLedger) CloseDB() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		t                     domain.Ticket
		threadID              int
		userID                string
		openedAt, closedAt    int64
		opening, card, notice int
		closedBy, outcome     string
	)
	err := row.Scan(&threadID, &userID, &t.UserName, &t.Username, &openedAt, &opening,
		&card, &notice, &closedAt, &closedBy, &outcome)
	if err != nil {
		return nil, err
	}

	t.ThreadID = domain.ThreadID(threadID)
	t.UserID = domain.UserID(userID)
	t.OpenedAt = time.Unix(openedAt, 0)
	t.OpeningMessageID = domain.MessageID(opening)
	t.CardMessageID = domain.MessageID(card)
	t.NoticeMessageID = domain.MessageID(notice)
	if closedAt != 0 {
		t.ClosedAt = time.Unix(closedAt, 0)
	}
	t.ClosedBy = domain.ClosedBy(closedBy)
	t.Outcome = domain.Outcome(outcome)
	return &t, nil
}
