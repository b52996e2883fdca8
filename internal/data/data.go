package data

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/repo"
)

// Options configures the data layer
type Options struct {
	StoragePath  string
	LedgerPath   string
	AMQPURL      string // Empty logs events instead of publishing
	AMQPExchange string
	Producer     string
	SendRate     float64
	SendAttempts int
}

// Repositories contains all repositories
type Repositories struct {
	Sessions  *Registry
	Tickets   *TicketLedger
	Events    repo.EventPublisher
	Messenger repo.Messenger
}

// NewRepositories creates all repositories. transport is the raw platform
// client; it is wrapped with pacing and retries.
func NewRepositories(transport repo.Messenger, opts Options, logger *slog.Logger) (*Repositories, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewRegistry(NewSnapshotFile(opts.StoragePath), logger)
	if err := registry.Load(); err != nil {
		return nil, err
	}

	ledger, err := NewTicketLedger(opts.LedgerPath)
	if err != nil {
		return nil, err
	}

	var events repo.EventPublisher
	if opts.AMQPURL != "" {
		events, err = NewAMQPPublisher(opts.AMQPURL, opts.AMQPExchange, opts.Producer, logger)
		if err != nil {
			ledger.CloseDB()
			return nil, err
		}
	} else {
		events = NewLogPublisher(logger)
	}

	return &Repositories{
		Sessions:  registry,
		Tickets:   ledger,
		Events:    events,
		Messenger: NewRetryingMessenger(transport, opts.SendRate, DefaultRetryPolicy(opts.SendAttempts), logger),
	}, nil
}

// Close flushes the registry snapshot and releases storage and broker handles
func (r *Repositories) Close() error {
	var errs []error
	if err := r.Sessions.Persist(); err != nil {
		errs = append(errs, err)
	}
	if err := r.Tickets.CloseDB(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close ledger: %w", err))
	}
	if err := r.Events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
	}
	return errors.Join(errs...)
}
