package domain

import (
	"errors"
	"time"
)

const MaxMessageLen = 4096

var (
	ErrMessageEmpty   = errors.New("message content empty")
	ErrMessageTooLong = errors.New("message content too long")
)

// Message is the persisted chat record. The realtime layer treats the
// stored value as opaque and forwards it verbatim in new_message events.
type Message struct {
	ID        uint64    `json:"id" msgpack:"id"`
	RoomID    RoomID    `json:"room_id" msgpack:"room_id"`
	UserID    UserID    `json:"user_id" msgpack:"user_id"`
	Username  string    `json:"username" msgpack:"username"`
	Content   string    `json:"content" msgpack:"content"`
	Type      string    `json:"message_type" msgpack:"message_type"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
}

func ValidateContent(content string) error {
	if len(content) == 0 {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLen {
		return ErrMessageTooLong
	}
	return nil
}
