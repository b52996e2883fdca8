package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/usecase"
)

// seenTTL is how long an update id is remembered for de-duplication
const seenTTL = 5 * time.Minute

// Relay is the set of relay operations the dispatcher routes to
type Relay interface {
	Greet(ctx context.Context, msg *domain.InboundMessage)
	HandleUserMessage(ctx context.Context, msg *domain.InboundMessage) error
	HandleUserEdit(ctx context.Context, msg *domain.InboundMessage) error
	HandleQuickReply(ctx context.Context, msg *domain.InboundMessage, action domain.QuickReply) error
	HandleStaffMessage(ctx context.Context, msg *domain.InboundMessage) error
	HandleStaffEdit(ctx context.Context, msg *domain.InboundMessage) error
	HandleCloseCommand(ctx context.Context, msg *domain.InboundMessage) error
	HandleTopicsCommand(ctx context.Context, msg *domain.InboundMessage) error
}

var _ Relay = (*usecase.RelayUsecase)(nil)

// Dispatcher classifies inbound messages and routes them to the relay. Each
// message runs inside its own failure boundary. Messages queued with Enqueue
// are handled in arrival order per conversation.
type Dispatcher struct {
	relay   Relay
	groupID domain.ChatID
	botID   domain.UserID
	logger  *slog.Logger

	// Per-conversation FIFO queues, a key is present while its worker runs
	queueMu sync.Mutex
	queues  map[string][]queuedMessage
	workers sync.WaitGroup

	// Update de-duplication cache
	seenMu sync.Mutex
	seen   map[int64]time.Time // updateID -> first seen
	now    func() time.Time
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(relay Relay, groupID domain.ChatID, botID domain.UserID, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		relay:   relay,
		groupID: groupID,
		botID:   botID,
		logger:  logger.With(slog.String("component", "dispatcher")),
		queues:  make(map[string][]queuedMessage),
		seen:    make(map[int64]time.Time),
		now:     time.Now,
	}
}

type queuedMessage struct {
	ctx context.Context
	msg *domain.InboundMessage
}

// queueKey names the conversation msg belongs to: the private chat, or the
// thread inside the support group
func (d *Dispatcher) queueKey(msg *domain.InboundMessage) string {
	if msg.Private {
		return fmt.Sprintf("chat:%d", msg.ChatID)
	}
	return fmt.Sprintf("thread:%d:%d", msg.ChatID, msg.ThreadID)
}

// Enqueue queues msg behind earlier messages of the same conversation and
// returns without waiting for it to be handled. Callers must deliver
// messages in arrival order and must not call Enqueue after Wait.
func (d *Dispatcher) Enqueue(ctx context.Context, msg *domain.InboundMessage) {
	if msg == nil {
		return
	}
	key := d.queueKey(msg)

	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	pending, running := d.queues[key]
	d.queues[key] = append(pending, queuedMessage{ctx: ctx, msg: msg})
	if !running {
		d.workers.Add(1)
		go d.drain(key)
	}
}

func (d *Dispatcher) drain(key string) {
	defer d.workers.Done()
	for {
		d.queueMu.Lock()
		pending := d.queues[key]
		if len(pending) == 0 {
			delete(d.queues, key)
			d.queueMu.Unlock()
			return
		}
		next := pending[0]
		d.queues[key] = pending[1:]
		d.queueMu.Unlock()

		d.Dispatch(next.ctx, next.msg)
	}
}

// Wait blocks until every queued message has been handled
func (d *Dispatcher) Wait() {
	d.workers.Wait()
}

// Dispatch handles one inbound message to completion, regardless of ctx
// cancellation. It never panics and never returns an error; failures are
// logged.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *domain.InboundMessage) {
	if msg == nil {
		return
	}
	if d.markSeen(msg.UpdateID) {
		d.logger.Debug("duplicate update ignored", slog.Int64("update_id", msg.UpdateID))
		return
	}

	id := uuid.NewString()
	ctx = usecase.WithCorrelationID(context.WithoutCancel(ctx), id)
	logger := d.logger.With(
		slog.String("update", id),
		slog.Int64("chat", int64(msg.ChatID)),
		slog.Int("msg", int(msg.MessageID)))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling update",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := d.route(ctx, msg); err != nil {
		logger.Error("update handling failed", slog.Any("error", err))
	}
}

func (d *Dispatcher) route(ctx context.Context, msg *domain.InboundMessage) error {
	switch {
	case msg.Private:
		return d.routePrivate(ctx, msg)
	case msg.ChatID == d.groupID:
		return d.routeGroup(ctx, msg)
	}
	return nil
}

func (d *Dispatcher) routePrivate(ctx context.Context, msg *domain.InboundMessage) error {
	if msg.From.IsBot {
		return nil
	}
	if msg.Edited {
		return d.relay.HandleUserEdit(ctx, msg)
	}

	if msg.Content.Kind == domain.ContentText {
		if command(msg.Content.Text) == "/start" {
			d.relay.Greet(ctx, msg)
			return nil
		}
		if action, ok := domain.ParseQuickReply(msg.Content.Text); ok {
			return d.relay.HandleQuickReply(ctx, msg, action)
		}
	}
	return d.relay.HandleUserMessage(ctx, msg)
}

func (d *Dispatcher) routeGroup(ctx context.Context, msg *domain.InboundMessage) error {
	if msg.From.UserID == d.botID {
		return nil
	}
	if msg.Edited {
		return d.relay.HandleStaffEdit(ctx, msg)
	}

	if msg.Content.Kind == domain.ContentText {
		switch command(msg.Content.Text) {
		case "/topics":
			return d.relay.HandleTopicsCommand(ctx, msg)
		case "/close":
			if !msg.InThread() {
				return nil
			}
			return d.relay.HandleCloseCommand(ctx, msg)
		}
	}

	if !msg.InThread() {
		return nil
	}
	return d.relay.HandleStaffMessage(ctx, msg)
}

// command returns the leading bot command of text without its @botname
// suffix, or "" if text is not a command
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

// markSeen records updateID and reports whether it had been seen before.
// Zero ids are never de-duplicated.
func (d *Dispatcher) markSeen(updateID int64) bool {
	if updateID == 0 {
		return false
	}
	d.seenMu.Lock()
	defer d.seenMu.Unlock()

	now := d.now()
	if _, exists := d.seen[updateID]; exists {
		return true
	}
	d.seen[updateID] = now

	// Drop expired records while we hold the lock
	cutoff := now.Add(-seenTTL)
	for id, ts := range d.seen {
		if ts.Before(cutoff) {
			delete(d.seen, id)
		}
	}
	return false
}
