package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/repo"
)

// RelayConfig holds the static relay settings
type RelayConfig struct {
	GroupID domain.ChatID // Forum supergroup hosting the staff threads
	BotID   domain.UserID // Messages from this id are never relayed
	Texts   Texts         // Empty fields fall back to DefaultTexts
}

// RelayUsecase routes messages between users and staff threads and owns the
// ticket open and close procedures
type RelayUsecase struct {
	sessions  repo.SessionRepo
	tickets   repo.TicketRepo
	messenger repo.Messenger
	events    repo.EventPublisher
	config    RelayConfig
	texts     Texts
	locks     *userLocks
	now       func() time.Time
	logger    *slog.Logger
}

// NewRelayUsecase creates a new relay usecase
func NewRelayUsecase(
	sessions repo.SessionRepo,
	tickets repo.TicketRepo,
	messenger repo.Messenger,
	events repo.EventPublisher,
	config RelayConfig,
	logger *slog.Logger,
) *RelayUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayUsecase{
		sessions:  sessions,
		tickets:   tickets,
		messenger: messenger,
		events:    events,
		config:    config,
		texts:     config.Texts.WithDefaults(),
		locks:     newUserLocks(),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "relay")),
	}
}

// SetClock replaces the time source
func (uc *RelayUsecase) SetClock(now func() time.Time) {
	uc.now = now
}

type correlationKey struct{}

// WithCorrelationID tags ctx with the id of the update being processed
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func (uc *RelayUsecase) log(ctx context.Context) *slog.Logger {
	if id := CorrelationID(ctx); id != "" {
		return uc.logger.With(slog.String("update", id))
	}
	return uc.logger
}

func (uc *RelayUsecase) persist(ctx context.Context) {
	if err := uc.sessions.Persist(); err != nil {
		uc.log(ctx).Error("failed to persist registry", slog.Any("error", err))
	}
}

// reply sends a plain notice; failures are only logged
func (uc *RelayUsecase) reply(ctx context.Context, req repo.SendRequest) {
	if _, err := uc.messenger.Send(ctx, req); err != nil {
		uc.log(ctx).Warn("failed to send notice",
			slog.Int64("chat", int64(req.ChatID)),
			slog.Int("thread", int(req.ThreadID)),
			slog.Any("error", err))
	}
}

func (uc *RelayUsecase) replyUser(ctx context.Context, chat domain.ChatID, text string, html bool) {
	uc.reply(ctx, repo.SendRequest{
		ChatID:       chat,
		Content:      domain.Content{Kind: domain.ContentText, Text: text},
		HTML:         html,
		WithKeyboard: true,
	})
}

func (uc *RelayUsecase) replyThread(ctx context.Context, thread domain.ThreadID, replyTo domain.MessageID, text string, html bool) {
	uc.reply(ctx, repo.SendRequest{
		ChatID:   uc.config.GroupID,
		ThreadID: thread,
		Content:  domain.Content{Kind: domain.ContentText, Text: text},
		ReplyTo:  replyTo,
		HTML:     html,
	})
}

// Greet answers /start
func (uc *RelayUsecase) Greet(ctx context.Context, msg *domain.InboundMessage) {
	uc.replyUser(ctx, msg.ChatID, uc.texts.Greeting, false)
}

// HandleUserMessage relays a private message into the user's thread, opening
// a ticket first when the user has none. Once started it runs to completion
// even if ctx is canceled.
func (uc *RelayUsecase) HandleUserMessage(ctx context.Context, msg *domain.InboundMessage) error {
	if msg.Content.IsEmpty() {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	userID := msg.From.UserID
	logger := uc.log(ctx).With(slog.String("user", string(userID)))

	unlock := uc.locks.lock(userID)
	defer unlock()

	thread, isNew := uc.sessions.OpenOrGet(userID)
	if isNew {
		ticket, err := uc.openTicket(ctx, msg)
		if err != nil {
			logger.Error("failed to open ticket", slog.Any("error", err))
			uc.replyUser(ctx, msg.ChatID, uc.texts.OpenFailed, false)
			return err
		}
		thread = ticket.ThreadID
		logger.Info("ticket opened", slog.Int("thread", int(thread)))
	}

	var replyTo domain.MessageID
	if msg.ReplyTo != 0 {
		replyTo, _ = uc.sessions.ResolveUserToGroup(msg.ReplyTo)
	}

	groupMsg, err := uc.messenger.Send(ctx, repo.SendRequest{
		ChatID:          uc.config.GroupID,
		ThreadID:        thread,
		Content:         msg.Content,
		ReplyTo:         replyTo,
		CopyFromChat:    msg.ChatID,
		CopyFromMessage: msg.MessageID,
	})
	if err != nil {
		logger.Error("failed to relay user message",
			slog.Int("thread", int(thread)),
			slog.String("direction", "user_to_group"),
			slog.Any("error", err))
		uc.replyUser(ctx, msg.ChatID, uc.texts.UserUndelivered, false)
		return fmt.Errorf("relay to thread %d: %w", thread, err)
	}

	uc.sessions.LinkMessages(domain.MessageLink{
		ThreadID:       thread,
		GroupMessageID: groupMsg,
		UserMessageID:  msg.MessageID,
	})
	uc.sessions.Touch(thread)
	uc.persist(ctx)
	logger.Debug("user message relayed", slog.Int("thread", int(thread)), slog.Int("group_msg", int(groupMsg)))

	if isNew {
		uc.replyUser(ctx, msg.ChatID, uc.texts.SentToSupport, true)
	}
	return nil
}

// HandleStaffMessage relays a staff message from a bound thread to the user
func (uc *RelayUsecase) HandleStaffMessage(ctx context.Context, msg *domain.InboundMessage) error {
	if !msg.InThread() || msg.From.UserID == uc.config.BotID {
		return nil
	}
	thread := msg.ThreadID
	logger := uc.log(ctx).With(slog.Int("thread", int(thread)))

	userID, err := uc.sessions.LookupByThread(thread)
	if err != nil {
		logger.Debug("message in unbound thread ignored")
		return nil
	}

	// A close may have run between lookup and lock
	unlock := uc.locks.lock(userID)
	defer unlock()
	if current, err := uc.sessions.LookupByThread(thread); err != nil || current != userID {
		return nil
	}

	if msg.Content.IsEmpty() {
		uc.replyThread(ctx, thread, msg.MessageID, uc.texts.EmptyStaffMessage, false)
		return nil
	}

	chat, err := userID.ChatID()
	if err != nil {
		return err
	}

	replyTo := uc.resolveStaffQuote(ctx, thread, msg.ReplyTo)

	userMsg, err := uc.messenger.Send(ctx, repo.SendRequest{
		ChatID:          chat,
		Content:         msg.Content,
		ReplyTo:         replyTo,
		CopyFromChat:    uc.config.GroupID,
		CopyFromMessage: msg.MessageID,
	})
	if err != nil {
		logger.Error("failed to relay staff message",
			slog.String("user", string(userID)),
			slog.String("direction", "group_to_user"),
			slog.Any("error", err))
		uc.replyThread(ctx, thread, msg.MessageID, staffUndeliveredText(err), false)
		return fmt.Errorf("relay to user %s: %w", userID, err)
	}

	uc.sessions.LinkMessages(domain.MessageLink{
		ThreadID:       thread,
		GroupMessageID: msg.MessageID,
		UserMessageID:  userMsg,
	})
	uc.sessions.Touch(thread)
	uc.persist(ctx)
	logger.Debug("staff message relayed", slog.String("user", string(userID)), slog.Int("user_msg", int(userMsg)))
	return nil
}

// resolveStaffQuote maps a quoted thread message to the user side. A quote of
// the ticket card resolves to the message that opened the ticket.
func (uc *RelayUsecase) resolveStaffQuote(ctx context.Context, thread domain.ThreadID, quoted domain.MessageID) domain.MessageID {
	if quoted == 0 {
		return 0
	}
	if userMsg, ok := uc.sessions.ResolveGroupToUser(quoted); ok {
		return userMsg
	}

	ticket, err := uc.tickets.Get(ctx, thread)
	if err != nil {
		uc.log(ctx).Warn("failed to load ticket", slog.Int("thread", int(thread)), slog.Any("error", err))
		return 0
	}
	if ticket != nil && ticket.IsOpen() && ticket.CardMessageID == quoted {
		return ticket.OpeningMessageID
	}
	return 0
}

// HandleUserEdit propagates an edited private message to its thread copy
func (uc *RelayUsecase) HandleUserEdit(ctx context.Context, msg *domain.InboundMessage) error {
	thread, err := uc.sessions.LookupThread(msg.From.UserID)
	if err != nil {
		return nil
	}
	groupMsg, ok := uc.sessions.ResolveUserToGroup(msg.MessageID)
	if !ok {
		return nil
	}
	uc.propagateEdit(ctx, thread, uc.config.GroupID, groupMsg, msg.Content)
	return nil
}

// HandleStaffEdit propagates an edited staff message to the user's copy
func (uc *RelayUsecase) HandleStaffEdit(ctx context.Context, msg *domain.InboundMessage) error {
	if !msg.InThread() || msg.From.UserID == uc.config.BotID {
		return nil
	}
	userID, err := uc.sessions.LookupByThread(msg.ThreadID)
	if err != nil {
		return nil
	}
	userMsg, ok := uc.sessions.ResolveGroupToUser(msg.MessageID)
	if !ok {
		return nil
	}
	chat, err := userID.ChatID()
	if err != nil {
		return err
	}
	uc.propagateEdit(ctx, msg.ThreadID, chat, userMsg, msg.Content)
	return nil
}

// propagateEdit re-applies edited content to the paired message. Unsupported
// content and platform refusals are dropped with a log line.
func (uc *RelayUsecase) propagateEdit(ctx context.Context, thread domain.ThreadID, chat domain.ChatID, target domain.MessageID, content domain.Content) {
	logger := uc.log(ctx).With(slog.Int("thread", int(thread)), slog.Int("target", int(target)))

	var err error
	switch {
	case content.Kind == domain.ContentText:
		err = uc.messenger.EditText(ctx, chat, target, content.Text, false)
	case content.IsMedia() && content.Caption != "":
		err = uc.messenger.EditCaption(ctx, chat, target, content.Caption)
	default:
		logger.Debug("edit not propagated, unsupported content", slog.String("kind", string(content.Kind)))
		return
	}

	switch kind := domain.DeliveryKindOf(err); {
	case err == nil:
		logger.Debug("edit propagated")
	case kind == domain.DeliveryTooOld:
		logger.Warn("edit not propagated, message can no longer be edited")
	case kind == domain.DeliveryNotFound:
		logger.Warn("edit not propagated, message not found")
	default:
		logger.Warn("edit not propagated", slog.Any("error", err))
	}
}

// HandleQuickReply executes one of the user keyboard actions
func (uc *RelayUsecase) HandleQuickReply(ctx context.Context, msg *domain.InboundMessage, action domain.QuickReply) error {
	switch action {
	case domain.QuickResolved:
		return uc.closeByUser(ctx, msg, domain.OutcomeResolved)
	case domain.QuickUnresolved:
		return uc.closeByUser(ctx, msg, domain.OutcomeUnresolved)
	case domain.QuickClearChat:
		return uc.clearChat(ctx, msg)
	}
	return nil
}

func (uc *RelayUsecase) closeByUser(ctx context.Context, msg *domain.InboundMessage, outcome domain.Outcome) error {
	ctx = context.WithoutCancel(ctx)
	userID := msg.From.UserID
	unlock := uc.locks.lock(userID)
	defer unlock()

	thread, err := uc.sessions.LookupThread(userID)
	if err != nil {
		uc.replyUser(ctx, msg.ChatID, uc.texts.NoOpenTicket, false)
		return nil
	}

	if err := uc.closeLocked(ctx, userID, thread, domain.ClosedByUser, outcome); err != nil {
		uc.replyUser(ctx, msg.ChatID, uc.texts.CloseFailed, false)
		return err
	}

	if outcome == domain.OutcomeResolved {
		uc.replyUser(ctx, msg.ChatID, uc.texts.Farewell, false)
	} else {
		uc.replyUser(ctx, msg.ChatID, uc.texts.Sorry, false)
	}
	return nil
}

// clearHistoryDepth is how many earlier message ids clear chat deletes
const clearHistoryDepth = 250

func (uc *RelayUsecase) clearChat(ctx context.Context, msg *domain.InboundMessage) error {
	if _, err := uc.sessions.LookupThread(msg.From.UserID); err == nil {
		uc.replyUser(ctx, msg.ChatID, uc.texts.ClearRefused, false)
		return nil
	}

	uc.replyUser(ctx, msg.ChatID, uc.texts.Farewell, false)

	deleted := 0
	for id := msg.MessageID; id > 0 && id > msg.MessageID-clearHistoryDepth; id-- {
		if ctx.Err() != nil {
			break
		}
		if err := uc.messenger.Delete(ctx, msg.ChatID, id); err == nil {
			deleted++
		}
	}
	uc.log(ctx).Info("chat cleared", slog.String("user", string(msg.From.UserID)), slog.Int("deleted", deleted))
	return nil
}

// HandleCloseCommand runs /close issued inside a thread
func (uc *RelayUsecase) HandleCloseCommand(ctx context.Context, msg *domain.InboundMessage) error {
	if !msg.InThread() {
		return nil
	}
	thread := msg.ThreadID

	err := uc.CloseBySupport(ctx, thread)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		uc.replyThread(ctx, thread, msg.MessageID, uc.texts.NoUserForThread, false)
		return nil
	case err != nil:
		uc.replyThread(ctx, thread, msg.MessageID, staffCloseFailedText(err), false)
		return err
	}
	return nil
}

// CloseBySupport closes thread on behalf of staff and confirms it in the
// thread
func (uc *RelayUsecase) CloseBySupport(ctx context.Context, thread domain.ThreadID) error {
	ctx = context.WithoutCancel(ctx)
	if err := uc.CloseTicket(ctx, thread, domain.ClosedBySupport, domain.OutcomeForciblyClosed); err != nil {
		return err
	}
	uc.replyThread(ctx, thread, 0, uc.texts.ClosedBySupport, false)
	return nil
}

// HandleTopicsCommand answers /topics with the list of open threads
func (uc *RelayUsecase) HandleTopicsCommand(ctx context.Context, msg *domain.InboundMessage) error {
	open := uc.ListOpen(ctx)
	uc.reply(ctx, repo.SendRequest{
		ChatID:   msg.ChatID,
		ThreadID: msg.ThreadID,
		Content:  domain.Content{Kind: domain.ContentText, Text: topicsText(open, uc.texts.NoActiveThreads)},
		ReplyTo:  msg.MessageID,
		HTML:     true,
	})
	return nil
}

// OpenTicket pairs an open session with its ledger record, if any
type OpenTicket struct {
	Session domain.Session
	Ticket  *domain.Ticket
}

// ListOpen returns all open sessions with their ledger records
func (uc *RelayUsecase) ListOpen(ctx context.Context) []OpenTicket {
	sessions := uc.sessions.ListOpen()
	open := make([]OpenTicket, 0, len(sessions))
	for _, s := range sessions {
		ticket, err := uc.tickets.Get(ctx, s.ThreadID)
		if err != nil {
			uc.log(ctx).Warn("failed to load ticket", slog.Int("thread", int(s.ThreadID)), slog.Any("error", err))
		}
		if ticket != nil && (ticket.UserID != s.UserID || !ticket.IsOpen()) {
			ticket = nil
		}
		if ticket != nil && s.CreatedAt.IsZero() {
			s.CreatedAt = ticket.OpenedAt
		}
		open = append(open, OpenTicket{Session: s, Ticket: ticket})
	}
	return open
}
