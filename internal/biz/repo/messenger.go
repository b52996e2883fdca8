package repo

import (
	"context"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

// SendRequest describes one outbound message
type SendRequest struct {
	ChatID   domain.ChatID
	ThreadID domain.ThreadID // Zero to post outside any thread
	Content  domain.Content
	ReplyTo  domain.MessageID // Zero for no quote
	HTML     bool             // Text and caption use HTML markup

	// WithKeyboard attaches the user quick-reply keyboard
	WithKeyboard bool

	// Source of a verbatim copy, used when Content.Kind is ContentOther
	CopyFromChat    domain.ChatID
	CopyFromMessage domain.MessageID
}

// Messenger is the transport repository interface
// Thread operations always target the configured staff group.
// Every method returns *domain.DeliveryError on failure.
type Messenger interface {
	// CreateThread opens a new thread in the staff group
	CreateThread(ctx context.Context, title string) (domain.ThreadID, error)

	// CloseThread closes a thread in the staff group
	CloseThread(ctx context.Context, threadID domain.ThreadID) error

	// Send delivers a message and returns its id
	Send(ctx context.Context, req SendRequest) (domain.MessageID, error)

	// EditText replaces the text of a message
	EditText(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID, text string, html bool) error

	// EditCaption replaces the caption of a media message
	EditCaption(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID, caption string) error

	// Pin pins a message silently
	Pin(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID) error

	// Delete removes a message
	Delete(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID) error
}
