package domain

import "errors"

type RoomID string

// RoomType gates which features a room supports. Video-only rooms
// reject text chat; everything else accepts it.
type RoomType string

const (
	RoomTypeText  RoomType = "text"
	RoomTypeVideo RoomType = "video"
	RoomTypeMixed RoomType = "text-and-video"
)

const MaxRoomNameLen = 100

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
	ErrBadRoomType     = errors.New("unknown room type")
)

type Room struct {
	ID        RoomID   `json:"id" msgpack:"id"`
	Name      string   `json:"name" msgpack:"name"`
	Type      RoomType `json:"type" msgpack:"type"`
	Latitude  float64  `json:"latitude" msgpack:"latitude"`
	Longitude float64  `json:"longitude" msgpack:"longitude"`
	IsPublic  bool     `json:"is_public" msgpack:"is_public"`
	CreatedBy UserID   `json:"created_by,omitempty" msgpack:"created_by"`
}

// SupportsText reports whether text chat is allowed in the room.
func (r *Room) SupportsText() bool {
	return r.Type != RoomTypeVideo
}

func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeText, RoomTypeVideo, RoomTypeMixed:
		return true
	}
	return false
}

func ValidateRoomName(name string) error {
	if len(name) == 0 {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	return nil
}
