package core

import "errors"

var (
	// ErrNotJoined is returned when chat, typing or signaling is
	// attempted before a successful join. The connection stays open.
	ErrNotJoined = errors.New("must join a room first")

	// ErrRoomNotFound is returned by the room collaborator and by join
	// when the target room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrUnsupportedRoomType is returned for text chat in a video-only room.
	ErrUnsupportedRoomType = errors.New("video-only rooms do not support text messages")

	// ErrRateLimited is returned when a sender exceeds the chat rate limit.
	ErrRateLimited = errors.New("too many messages, slow down")

	// ErrConnClosed is returned by a Conn whose transport is gone.
	ErrConnClosed = errors.New("connection closed")

	// ErrBackpressure is returned by a Conn whose outbound queue is full.
	ErrBackpressure = errors.New("backpressure")
)
