package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

// DefaultReapInterval is the period between idle scans
const DefaultReapInterval = 600 * time.Second

// IdleSource lists threads idle for longer than a threshold
type IdleSource interface {
	IdleSince(threshold time.Duration) []domain.ThreadID
}

// TicketCloser runs the close procedure for one thread
type TicketCloser interface {
	CloseTicket(ctx context.Context, thread domain.ThreadID, by domain.ClosedBy, outcome domain.Outcome) error
}

// Reaper closes tickets that stayed idle past the inactivity threshold
type Reaper struct {
	sessions  IdleSource
	closer    TicketCloser
	threshold time.Duration
	interval  time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper creates a new reaper. A non-positive interval uses
// DefaultReapInterval.
func NewReaper(sessions IdleSource, closer TicketCloser, threshold, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		sessions:  sessions,
		closer:    closer,
		threshold: threshold,
		interval:  interval,
		logger:    logger.With(slog.String("component", "reaper")),
	}
}

// Start starts the reap loop
func (r *Reaper) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop()

	r.logger.Info("reaper started",
		slog.Duration("interval", r.interval),
		slog.Duration("threshold", r.threshold))
}

// Stop stops the loop and waits for a running scan to finish
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("reaper stopped")
}

func (r *Reaper) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Reap(r.ctx)
		}
	}
}

// Reap runs one scan and returns the number of tickets closed. A failure on
// one thread does not stop the scan.
func (r *Reaper) Reap(ctx context.Context) int {
	idle := r.sessions.IdleSince(r.threshold)
	if len(idle) == 0 {
		return 0
	}

	closed := 0
	for _, thread := range idle {
		if ctx.Err() != nil {
			break
		}
		if r.closeOne(ctx, thread) {
			closed++
		}
	}
	r.logger.Info("idle scan finished", slog.Int("idle", len(idle)), slog.Int("closed", closed))
	return closed
}

func (r *Reaper) closeOne(ctx context.Context, thread domain.ThreadID) (ok bool) {
	logger := r.logger.With(slog.Int("thread", int(thread)))
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic while closing idle ticket", slog.Any("panic", p))
			ok = false
		}
	}()

	err := r.closer.CloseTicket(ctx, thread, domain.ClosedBySystem, domain.OutcomeForciblyClosed)
	switch {
	case err == nil:
		logger.Info("idle ticket closed")
		return true
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("idle ticket already closed")
	default:
		logger.Error("failed to close idle ticket", slog.Any("error", err))
	}
	return false
}
