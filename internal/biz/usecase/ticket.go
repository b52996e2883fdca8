package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/repo"
)

const publishTimeout = 5 * time.Second

// openTicket creates a thread and binds it to the sender as one unit. When
// binding fails the new thread is closed again and *domain.OrphanThreadError
// is returned. The caller must hold the sender's user lock.
func (uc *RelayUsecase) openTicket(ctx context.Context, msg *domain.InboundMessage) (*domain.Ticket, error) {
	from := msg.From

	thread, err := uc.messenger.CreateThread(ctx, threadTitle(from))
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	openedAt := uc.now()
	if err := uc.sessions.Bind(from.UserID, thread, openedAt); err != nil {
		closeErr := uc.messenger.CloseThread(ctx, thread)
		if closeErr != nil {
			uc.log(ctx).Error("orphan thread left open",
				slog.Int("thread", int(thread)),
				slog.Any("error", closeErr))
		}
		return nil, &domain.OrphanThreadError{ThreadID: thread, Cleaned: closeErr == nil, Err: err}
	}
	uc.persist(ctx)

	ticket := &domain.Ticket{
		ThreadID:         thread,
		UserID:           from.UserID,
		UserName:         from.FirstName,
		Username:         from.Username,
		OpenedAt:         openedAt,
		OpeningMessageID: msg.MessageID,
	}
	if err := uc.tickets.Open(ctx, ticket); err != nil {
		uc.log(ctx).Error("failed to record ticket", slog.Int("thread", int(thread)), slog.Any("error", err))
	}

	uc.announce(ctx, ticket)

	uc.publish(ctx, domain.TicketEvent{
		Type:     domain.EventTicketOpened,
		ThreadID: thread,
		UserID:   from.UserID,
		OpenedAt: openedAt,
	})
	return ticket, nil
}

// announce posts and pins the user card in the thread and the new-ticket
// notice in the group's general area
func (uc *RelayUsecase) announce(ctx context.Context, ticket *domain.Ticket) {
	logger := uc.log(ctx).With(slog.Int("thread", int(ticket.ThreadID)))
	group := uc.config.GroupID

	card, err := uc.messenger.Send(ctx, repo.SendRequest{
		ChatID:   group,
		ThreadID: ticket.ThreadID,
		Content:  domain.Content{Kind: domain.ContentText, Text: cardText(ticket)},
		HTML:     true,
	})
	if err != nil {
		logger.Warn("failed to post user card", slog.Any("error", err))
	} else if err := uc.messenger.Pin(ctx, group, card); err != nil {
		logger.Warn("failed to pin user card", slog.Any("error", err))
	}

	notice, err := uc.messenger.Send(ctx, repo.SendRequest{
		ChatID:  group,
		Content: domain.Content{Kind: domain.ContentText, Text: noticeText(ticket, ThreadURL(group, ticket.ThreadID))},
		HTML:    true,
	})
	if err != nil {
		logger.Warn("failed to post ticket notice", slog.Any("error", err))
	}

	ticket.CardMessageID = card
	ticket.NoticeMessageID = notice
	if card == 0 && notice == 0 {
		return
	}
	if err := uc.tickets.SetMessages(ctx, ticket.ThreadID, card, notice); err != nil {
		logger.Error("failed to record ticket messages", slog.Any("error", err))
	}
}

// CloseTicket runs the close procedure for thread. It returns
// domain.ErrNotFound when the thread has no open session and an error when
// the thread could not be closed, in which case the session is kept.
// Cancellation of ctx does not interrupt a started close.
func (uc *RelayUsecase) CloseTicket(ctx context.Context, thread domain.ThreadID, by domain.ClosedBy, outcome domain.Outcome) error {
	ctx = context.WithoutCancel(ctx)
	userID, err := uc.sessions.LookupByThread(thread)
	if err != nil {
		return err
	}

	unlock := uc.locks.lock(userID)
	defer unlock()

	// Re-check under the lock, a concurrent close may have won
	if current, err := uc.sessions.LookupByThread(thread); err != nil || current != userID {
		return domain.ErrNotFound
	}
	return uc.closeLocked(ctx, userID, thread, by, outcome)
}

func (uc *RelayUsecase) closeLocked(ctx context.Context, userID domain.UserID, thread domain.ThreadID, by domain.ClosedBy, outcome domain.Outcome) error {
	logger := uc.log(ctx).With(
		slog.Int("thread", int(thread)),
		slog.String("user", string(userID)),
		slog.String("closed_by", string(by)),
		slog.String("outcome", string(outcome)))

	ticket, err := uc.tickets.Get(ctx, thread)
	if err != nil {
		logger.Warn("failed to load ticket", slog.Any("error", err))
	}
	if ticket == nil || ticket.UserID != userID || !ticket.IsOpen() {
		ticket = &domain.Ticket{ThreadID: thread, UserID: userID}
	}

	closedAt := uc.now()
	duration := closeDuration(ticket.OpenedAt, closedAt)
	st := closeStatus(by, outcome)

	if by != domain.ClosedByUser {
		uc.notifyUserClosed(ctx, userID, by)
	}

	if err := uc.messenger.CloseThread(ctx, thread); err != nil {
		logger.Error("failed to close thread, session kept", slog.Any("error", err))
		return fmt.Errorf("close thread %d: %w", thread, err)
	}

	if by != domain.ClosedBySupport {
		if _, err := uc.messenger.Send(ctx, repo.SendRequest{
			ChatID:   uc.config.GroupID,
			ThreadID: thread,
			Content:  domain.Content{Kind: domain.ContentText, Text: closureLine(st)},
		}); err != nil {
			logger.Warn("failed to post closure line", slog.Any("error", err))
		}
	}

	if ticket.NoticeMessageID != 0 {
		text := closedNoticeText(ticket, ThreadURL(uc.config.GroupID, thread), st, duration)
		if err := uc.messenger.EditText(ctx, uc.config.GroupID, ticket.NoticeMessageID, text, true); err != nil {
			logger.Warn("failed to update ticket notice", slog.Any("error", err))
		}
	}

	if _, err := uc.sessions.CloseByThread(thread); err != nil {
		logger.Warn("session already removed", slog.Any("error", err))
	}
	uc.persist(ctx)

	if err := uc.tickets.Close(ctx, thread, closedAt, by, outcome); err != nil {
		logger.Error("failed to record ticket closure", slog.Any("error", err))
	}

	event := domain.TicketEvent{
		Type:     domain.EventTicketClosed,
		ThreadID: thread,
		UserID:   userID,
		OpenedAt: ticket.OpenedAt,
		ClosedAt: closedAt,
		ClosedBy: by,
		Outcome:  outcome,
	}
	if !ticket.OpenedAt.IsZero() {
		event.DurationSec = int64(closedAt.Sub(ticket.OpenedAt) / time.Second)
	}
	uc.publish(ctx, event)

	logger.Info("ticket closed", slog.String("duration", duration))
	return nil
}

func (uc *RelayUsecase) notifyUserClosed(ctx context.Context, userID domain.UserID, by domain.ClosedBy) {
	chat, err := userID.ChatID()
	if err != nil {
		uc.log(ctx).Warn("cannot notify user", slog.String("user", string(userID)), slog.Any("error", err))
		return
	}
	text := uc.texts.UserClosedBySupport
	if by == domain.ClosedBySystem {
		text = uc.texts.UserClosedInactivity
	}
	uc.replyUser(ctx, chat, text, true)
}

func (uc *RelayUsecase) publish(ctx context.Context, event domain.TicketEvent) {
	if uc.events == nil {
		return
	}
	event.CorrelationID = CorrelationID(ctx)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := uc.events.Publish(pubCtx, event); err != nil {
		uc.log(ctx).Warn("failed to publish ticket event",
			slog.String("type", event.Type),
			slog.Int("thread", int(event.ThreadID)),
			slog.Any("error", err))
	}
}

// ReconcileLedger closes ledger tickets whose thread no longer has a session,
// as left behind by a crash between closing a thread and recording it. It
// returns how many tickets were closed.
func (uc *RelayUsecase) ReconcileLedger(ctx context.Context) (int, error) {
	open, err := uc.tickets.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open tickets: %w", err)
	}

	closed := 0
	for _, ticket := range open {
		if !ticket.IsOpen() {
			continue
		}
		if userID, err := uc.sessions.LookupByThread(ticket.ThreadID); err == nil && userID == ticket.UserID {
			continue
		}
		logger := uc.log(ctx).With(
			slog.Int("thread", int(ticket.ThreadID)),
			slog.String("user", string(ticket.UserID)))
		if err := uc.tickets.Close(ctx, ticket.ThreadID, uc.now(), domain.ClosedBySystem, domain.OutcomeForciblyClosed); err != nil {
			logger.Error("failed to close stale ticket", slog.Any("error", err))
			continue
		}
		logger.Warn("stale ticket closed in ledger")
		closed++
	}
	return closed, nil
}
