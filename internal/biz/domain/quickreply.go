package domain

// QuickReply is one of the fixed buttons on the user keyboard. The button
// label is what the platform sends back as message text.
type QuickReply string

const (
	QuickResolved   QuickReply = "✅ Issue resolved"
	QuickUnresolved QuickReply = "❌ Issue not resolved"
	QuickClearChat  QuickReply = "🧹 Clear chat"
)

// QuickReplies returns the keyboard buttons in display order
func QuickReplies() []QuickReply {
	return []QuickReply{QuickResolved, QuickUnresolved, QuickClearChat}
}

// ParseQuickReply matches text against the keyboard labels
func ParseQuickReply(text string) (QuickReply, bool) {
	for _, q := range QuickReplies() {
		if string(q) == text {
			return q, true
		}
	}
	return "", false
}
