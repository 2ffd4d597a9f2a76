package core

import (
	"context"
	"slices"
)

const (
	GeneralRoom = "general"
	// AppealRoom receives ban appeals as system messages.
	AppealRoom = "appelations"
	// SecretRoom is readable and writable only by the super-admin.
	SecretRoom = "secret"

	// SystemUsername is the author of messages synthesized by the server.
	SystemUsername = "System"
)

// Rooms is the fixed set of rooms in display order.
var Rooms = []string{GeneralRoom, "ru1", "ru2", "en1", "en2", AppealRoom, SecretRoom}

func IsRoom(id string) bool {
	return slices.Contains(Rooms, id)
}

// ReplyRef is the excerpt of the message a message replies to.
type ReplyRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Message is a chat message in a room.
// ID is unique across all rooms.
type Message struct {
	ID       string  `json:"id"`
	Chat     string  `json:"chat"`
	Text     *string `json:"text"`
	Username string  `json:"username"`
	IsAdmin  bool    `json:"isAdmin"`
	// Timestamp is in unix milliseconds.
	Timestamp int64     `json:"timestamp"`
	ReplyTo   *ReplyRef `json:"replyTo"`
	IsImage   bool      `json:"isImage"`
	ImageURL  *string   `json:"imageUrl"`
}

var (
	ErrInvalidRoom     = NewInsensitiveError(KindNotFound, "Invalid chat room")
	ErrRoomNotFound    = NewInsensitiveError(KindNotFound, "Chat not found")
	ErrMessageNotFound = NewInsensitiveError(KindNotFound, "Message not found")
)

type ChatStore interface {
	// AppendMessage assigns a fresh ID and timestamp to msg, appends it to
	// its room and returns the stored message.
	// It returns ErrInvalidRoom when msg.Chat is not a known room.
	AppendMessage(ctx context.Context, msg Message) (Message, error)

	// DeleteMessage removes the message with id from room.
	// authorize, when not nil, is called with the message before it is
	// removed and aborts the deletion by returning an error.
	DeleteMessage(ctx context.Context, room, id string, authorize func(Message) error) (Message, error)

	// Messages returns a copy of the messages of room in order.
	Messages(ctx context.Context, room string) ([]Message, error)

	// ClearRoom removes every message of room.
	ClearRoom(ctx context.Context, room string) error

	// NewMessageID returns an ID that no stored message uses and reserves
	// it, so later messages never receive it.
	NewMessageID() (string, error)
}
