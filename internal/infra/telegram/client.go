package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/repo"
)

// MessageHandler is the callback for received and edited messages
type MessageHandler func(ctx context.Context, msg *domain.InboundMessage)

// Client is the Telegram Bot API client. Thread operations target the
// configured support group, which must be a forum supergroup.
type Client struct {
	b         *bot.Bot
	groupID   domain.ChatID
	botID     domain.UserID
	onMessage MessageHandler
	logger    *slog.Logger
}

var _ repo.Messenger = (*Client)(nil)

// NewClient creates a client and verifies the token with getMe
func NewClient(ctx context.Context, token string, groupID domain.ChatID, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		groupID: groupID,
		logger:  logger.With(slog.String("component", "telegram")),
	}

	// One worker running handlers inline delivers updates in arrival order
	b, err := bot.New(token,
		bot.WithDefaultHandler(c.handleUpdate),
		bot.WithWorkers(1),
		bot.WithNotAsyncHandlers())
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	c.b = b

	me, err := b.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	c.botID = domain.UserIDFromInt(me.ID)
	c.logger.Info("bot identity resolved", slog.String("bot_id", string(c.botID)), slog.String("username", me.Username))

	return c, nil
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// BotID returns the bot's own user id
func (c *Client) BotID() domain.UserID {
	return c.botID
}

// GroupID returns the support group chat id
func (c *Client) GroupID() domain.ChatID {
	return c.groupID
}

// CheckGroup warns when the support group is not a forum
func (c *Client) CheckGroup(ctx context.Context) {
	chat, err := c.b.GetChat(ctx, &bot.GetChatParams{ChatID: int64(c.groupID)})
	if err != nil {
		c.logger.Error("failed to check support group", slog.Any("error", err))
		return
	}
	if !chat.IsForum {
		c.logger.Warn("support group is not a forum, threads cannot be created",
			slog.Int64("group", int64(c.groupID)))
	}
}

// Start drops pending updates and long-polls until ctx is done. The handler
// is called from a single goroutine, and no call is in flight once Start
// returns.
func (c *Client) Start(ctx context.Context) {
	if _, err := c.b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
		c.logger.Warn("failed to delete webhook", slog.Any("error", err))
	}
	c.logger.Info("polling started")
	c.b.Start(ctx)
	c.logger.Info("polling stopped")
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := ConvertUpdate(update)
	if msg == nil {
		return
	}
	if c.onMessage != nil {
		c.onMessage(ctx, msg)
	}
}

// CreateThread opens a forum topic in the support group
func (c *Client) CreateThread(ctx context.Context, title string) (domain.ThreadID, error) {
	topic, err := c.b.CreateForumTopic(ctx, &bot.CreateForumTopicParams{
		ChatID: int64(c.groupID),
		Name:   title,
	})
	if err != nil {
		return 0, classify("create_thread", err)
	}
	return domain.ThreadID(topic.MessageThreadID), nil
}

// CloseThread closes a forum topic. An already closed topic counts as success.
func (c *Client) CloseThread(ctx context.Context, threadID domain.ThreadID) error {
	_, err := c.b.CloseForumTopic(ctx, &bot.CloseForumTopicParams{
		ChatID:          int64(c.groupID),
		MessageThreadID: int(threadID),
	})
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "topic_not_modified") {
		return nil
	}
	return classify("close_thread", err)
}

// Send delivers req and returns the new message id
func (c *Client) Send(ctx context.Context, req repo.SendRequest) (domain.MessageID, error) {
	var reply *models.ReplyParameters
	if req.ReplyTo != 0 {
		reply = &models.ReplyParameters{
			MessageID:                int(req.ReplyTo),
			AllowSendingWithoutReply: true,
		}
	}
	var markup models.ReplyMarkup
	if req.WithKeyboard {
		markup = UserKeyboard()
	}
	var parseMode models.ParseMode
	if req.HTML {
		parseMode = models.ParseModeHTML
	}

	chatID := int64(req.ChatID)
	threadID := int(req.ThreadID)
	content := req.Content

	switch content.Kind {
	case domain.ContentText:
		msg, err := c.b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:          chatID,
			MessageThreadID: threadID,
			Text:            content.Text,
			ParseMode:       parseMode,
			ReplyParameters: reply,
			ReplyMarkup:     markup,
		})
		if err != nil {
			return 0, classify("send_text", err)
		}
		return domain.MessageID(msg.ID), nil

	case domain.ContentPhoto:
		msg, err := c.b.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:          chatID,
			MessageThreadID: threadID,
			Photo:           &models.InputFileString{Data: content.FileID},
			Caption:         content.Caption,
			ParseMode:       parseMode,
			ReplyParameters: reply,
			ReplyMarkup:     markup,
		})
		if err != nil {
			return 0, classify("send_photo", err)
		}
		return domain.MessageID(msg.ID), nil

	case domain.ContentDocument:
		msg, err := c.b.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:          chatID,
			MessageThreadID: threadID,
			Document:        &models.InputFileString{Data: content.FileID},
			Caption:         content.Caption,
			ParseMode:       parseMode,
			ReplyParameters: reply,
			ReplyMarkup:     markup,
		})
		if err != nil {
			return 0, classify("send_document", err)
		}
		return domain.MessageID(msg.ID), nil

	case domain.ContentVideo:
		msg, err := c.b.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:          chatID,
			MessageThreadID: threadID,
			Video:           &models.InputFileString{Data: content.FileID},
			Caption:         content.Caption,
			ParseMode:       parseMode,
			ReplyParameters: reply,
			ReplyMarkup:     markup,
		})
		if err != nil {
			return 0, classify("send_video", err)
		}
		return domain.MessageID(msg.ID), nil

	case domain.ContentOther:
		if req.CopyFromMessage == 0 {
			return 0, &domain.DeliveryError{Op: "copy", Kind: domain.DeliveryRejected, Err: errors.New("no source message to copy")}
		}
		msg, err := c.b.CopyMessage(ctx, &bot.CopyMessageParams{
			ChatID:          chatID,
			MessageThreadID: threadID,
			FromChatID:      int64(req.CopyFromChat),
			MessageID:       int(req.CopyFromMessage),
			ReplyParameters: reply,
			ReplyMarkup:     markup,
		})
		if err != nil {
			return 0, classify("copy", err)
		}
		return domain.MessageID(msg.ID), nil
	}

	return 0, &domain.DeliveryError{Op: "send", Kind: domain.DeliveryRejected, Err: errors.New("nothing to send")}
}

// EditText replaces a message text. An unchanged text counts as success.
func (c *Client) EditText(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID, text string, html bool) error {
	params := &bot.EditMessageTextParams{
		ChatID:    int64(chatID),
		MessageID: int(msgID),
		Text:      text,
	}
	if html {
		params.ParseMode = models.ParseModeHTML
	}
	_, err := c.b.EditMessageText(ctx, params)
	if isNotModified(err) {
		return nil
	}
	return classify("edit_text", err)
}

// EditCaption replaces a media caption. An unchanged caption counts as success.
func (c *Client) EditCaption(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID, caption string) error {
	_, err := c.b.EditMessageCaption(ctx, &bot.EditMessageCaptionParams{
		ChatID:    int64(chatID),
		MessageID: int(msgID),
		Caption:   caption,
	})
	if isNotModified(err) {
		return nil
	}
	return classify("edit_caption", err)
}

// Pin pins a message without notifying members
func (c *Client) Pin(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID) error {
	_, err := c.b.PinChatMessage(ctx, &bot.PinChatMessageParams{
		ChatID:              int64(chatID),
		MessageID:           int(msgID),
		DisableNotification: true,
	})
	return classify("pin", err)
}

// Delete removes a message
func (c *Client) Delete(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID) error {
	_, err := c.b.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    int64(chatID),
		MessageID: int(msgID),
	})
	return classify("delete", err)
}

// UserKeyboard builds the persistent quick-reply keyboard
func UserKeyboard() *models.ReplyKeyboardMarkup {
	row := make([]models.KeyboardButton, 0, len(domain.QuickReplies()))
	for _, q := range domain.QuickReplies() {
		row = append(row, models.KeyboardButton{Text: string(q)})
	}
	return &models.ReplyKeyboardMarkup{
		Keyboard:       [][]models.KeyboardButton{row},
		ResizeKeyboard: true,
	}
}
