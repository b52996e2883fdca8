package domain

import (
	"fmt"
	"strconv"
)

// UserID identifies an end user. It is string-typed so that platform ids
// larger than 53 bits survive JSON round-trips unchanged.
type UserID string

// ThreadID is the handle of a discussion thread inside the staff group.
type ThreadID int

// MessageID identifies a message within a single chat.
type MessageID int

// ChatID identifies a chat on the transport (private chat or group).
type ChatID int64

// ChatID returns the private chat that belongs to the user. On Telegram the
// private chat id equals the user id.
func (u UserID) ChatID() (ChatID, error) {
	id, err := strconv.ParseInt(string(u), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user id %q is not numeric: %w", string(u), err)
	}
	return ChatID(id), nil
}

// UserIDFromInt converts a numeric platform id into a UserID.
func UserIDFromInt(id int64) UserID {
	return UserID(strconv.FormatInt(id, 10))
}

func (t ThreadID) String() string {
	return strconv.Itoa(int(t))
}
