package domain

// MessageLink pairs a message in the staff thread with its counterpart in the
// user's private chat. ThreadID tags the owning thread so that links can be
// purged exactly when the thread closes.
type MessageLink struct {
	ThreadID       ThreadID
	GroupMessageID MessageID
	UserMessageID  MessageID
}
