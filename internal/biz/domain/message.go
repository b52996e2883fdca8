package domain

// ContentKind selects how a message is re-sent on the other surface
type ContentKind string

const (
	ContentEmpty    ContentKind = ""
	ContentText     ContentKind = "text"
	ContentPhoto    ContentKind = "photo"
	ContentDocument ContentKind = "document"
	ContentVideo    ContentKind = "video"
	ContentOther    ContentKind = "other" // Copied verbatim (voice, sticker, audio, animation, ...)
)

// Content is the relayable payload of a message
type Content struct {
	Kind    ContentKind
	Text    string
	Caption string
	FileID  string // Set for photo, document and video
}

// IsEmpty reports whether there is nothing to relay
func (c Content) IsEmpty() bool {
	return c.Kind == ContentEmpty
}

// IsMedia reports whether the content carries a caption-bearing file
func (c Content) IsMedia() bool {
	switch c.Kind {
	case ContentPhoto, ContentDocument, ContentVideo:
		return true
	}
	return false
}

// Sender represents the author of an inbound message
type Sender struct {
	UserID    UserID
	FirstName string
	Username  string
	IsBot     bool
}

// InboundMessage is a platform-neutral view of a received or edited message
type InboundMessage struct {
	UpdateID  int64
	ChatID    ChatID
	Private   bool // Sent in a 1:1 chat with the bot
	MessageID MessageID
	ThreadID  ThreadID // Zero outside forum threads
	From      Sender
	Content   Content
	ReplyTo   MessageID // Zero when the message quotes nothing
	Edited    bool
}

// InThread reports whether the message was posted inside a forum thread
func (m *InboundMessage) InThread() bool {
	return m.ThreadID != 0
}
