package core

import (
	"context"

	"geochat/internal/domain"
)

// Conn abstracts the transport endpoint for one client.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	// TrySend enqueues a payload without blocking. It fails when the
	// connection is closed or its outbound queue is full.
	TrySend(payload []byte) error
	// IsOpen reports whether the transport still accepts writes.
	IsOpen() bool
	Close()
}

// RoomDirectory is the external room collaborator. The realtime layer
// only needs existence and the type that gates text chat.
type RoomDirectory interface {
	// GetRoom returns ErrRoomNotFound when no room has the given id.
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
}

// MessageStore is the external persistence collaborator. SaveMessage
// returns the stored record; the engine forwards it verbatim.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
	ListMessages(ctx context.Context, roomID domain.RoomID, limit int) ([]*domain.Message, error)
}
