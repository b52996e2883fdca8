package telegram

import (
	"github.com/go-telegram/bot/models"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

// ConvertUpdate turns a new or edited message update into an InboundMessage.
// Other update kinds return nil.
func ConvertUpdate(update *models.Update) *domain.InboundMessage {
	if update == nil {
		return nil
	}

	msg := update.Message
	edited := false
	if msg == nil {
		msg = update.EditedMessage
		edited = true
	}
	if msg == nil || msg.From == nil {
		return nil
	}

	in := &domain.InboundMessage{
		UpdateID:  update.ID,
		ChatID:    domain.ChatID(msg.Chat.ID),
		Private:   msg.Chat.Type == models.ChatTypePrivate,
		MessageID: domain.MessageID(msg.ID),
		From: domain.Sender{
			UserID:    domain.UserIDFromInt(msg.From.ID),
			FirstName: msg.From.FirstName,
			Username:  msg.From.Username,
			IsBot:     msg.From.IsBot,
		},
		Content: ExtractContent(msg),
		Edited:  edited,
	}

	if msg.IsTopicMessage {
		in.ThreadID = domain.ThreadID(msg.MessageThreadID)
	}

	// Inside a topic every message without an explicit quote replies to the
	// topic's creation message, whose id equals the thread id
	if r := msg.ReplyToMessage; r != nil && !(msg.IsTopicMessage && r.ID == msg.MessageThreadID) {
		in.ReplyTo = domain.MessageID(r.ID)
	}

	return in
}

// ExtractContent picks the relayable payload of msg
func ExtractContent(msg *models.Message) domain.Content {
	switch {
	case msg.Text != "":
		return domain.Content{Kind: domain.ContentText, Text: msg.Text}

	case len(msg.Photo) > 0:
		// Last size is the largest
		return domain.Content{
			Kind:    domain.ContentPhoto,
			FileID:  msg.Photo[len(msg.Photo)-1].FileID,
			Caption: msg.Caption,
		}

	// Animations carry a document too and must be copied as they are
	case msg.Animation != nil:
		return domain.Content{Kind: domain.ContentOther, Caption: msg.Caption}

	case msg.Document != nil:
		return domain.Content{Kind: domain.ContentDocument, FileID: msg.Document.FileID, Caption: msg.Caption}

	case msg.Video != nil:
		return domain.Content{Kind: domain.ContentVideo, FileID: msg.Video.FileID, Caption: msg.Caption}

	case msg.Audio != nil, msg.Voice != nil, msg.Sticker != nil, msg.VideoNote != nil,
		msg.Contact != nil, msg.Location != nil, msg.Venue != nil, msg.Poll != nil, msg.Dice != nil:
		return domain.Content{Kind: domain.ContentOther, Caption: msg.Caption}
	}

	return domain.Content{}
}
