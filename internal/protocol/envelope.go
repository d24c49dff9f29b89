// Package protocol defines the wire envelopes exchanged over the
// persistent connection. Every message is a JSON object discriminated
// by its "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

type Kind string

// Inbound kinds (client to server).
const (
	KindJoin    Kind = "join"
	KindMessage Kind = "message"
	KindTyping  Kind = "typing"
	KindLeave   Kind = "leave"
	KindSignal  Kind = "webrtc-signal"
)

// Outbound kinds (server to client).
const (
	KindJoined     Kind = "joined"
	KindUserJoined Kind = "user_joined"
	KindUserLeft   Kind = "user_left"
	KindNewMessage Kind = "new_message"
	KindUserTyping Kind = "user_typing"
	KindError      Kind = "error"
)

var ErrMalformed = errors.New("invalid message format")

// DecodeKind extracts the discriminator without touching the payload.
func DecodeKind(data []byte) (Kind, error) {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", ErrMalformed
	}
	return env.Type, nil
}

type JoinPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type ChatPayload struct {
	Content string `json:"content"`
}

type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type SignalPayload struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

func DecodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return ErrMalformed
	}
	return nil
}

// UserRef identifies a participant in presence events and member lists.
type UserRef struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type JoinedEvent struct {
	Type          Kind      `json:"type"`
	RoomID        string    `json:"roomId"`
	ExistingUsers []UserRef `json:"existingUsers"`
}

type PresenceEvent struct {
	Type      Kind      `json:"type"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type NewMessageEvent struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

type TypingEvent struct {
	Type     Kind   `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type SignalEvent struct {
	Type   Kind            `json:"type"`
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

type ErrorEvent struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

func NewJoined(roomID string, existing []UserRef) JoinedEvent {
	if existing == nil {
		existing = []UserRef{}
	}
	return JoinedEvent{Type: KindJoined, RoomID: roomID, ExistingUsers: existing}
}

func NewUserJoined(userID, username string, at time.Time) PresenceEvent {
	return PresenceEvent{Type: KindUserJoined, UserID: userID, Username: username, Timestamp: at}
}

func NewUserLeft(userID, username string, at time.Time) PresenceEvent {
	return PresenceEvent{Type: KindUserLeft, UserID: userID, Username: username, Timestamp: at}
}

func NewError(msg string) ErrorEvent {
	return ErrorEvent{Type: KindError, Message: msg}
}

// ClientEnvelope is the client-side builder for every inbound kind.
type ClientEnvelope struct {
	Type     Kind            `json:"type"`
	RoomID   string          `json:"roomId,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	Username string          `json:"username,omitempty"`
	Content  string          `json:"content,omitempty"`
	IsTyping bool            `json:"isTyping,omitempty"`
	To       string          `json:"to,omitempty"`
	Signal   json.RawMessage `json:"signal,omitempty"`
}

func NewJoinRequest(roomID, userID, username string) ClientEnvelope {
	return ClientEnvelope{Type: KindJoin, RoomID: roomID, UserID: userID, Username: username}
}

func NewChatRequest(content string) ClientEnvelope {
	return ClientEnvelope{Type: KindMessage, Content: content}
}

func NewTypingRequest(isTyping bool) ClientEnvelope {
	return ClientEnvelope{Type: KindTyping, IsTyping: isTyping}
}

func NewLeaveRequest() ClientEnvelope {
	return ClientEnvelope{Type: KindLeave}
}

func NewSignalRequest(to string, signal json.RawMessage) ClientEnvelope {
	return ClientEnvelope{Type: KindSignal, To: to, Signal: signal}
}

// ServerEnvelope is the client-side view of any server event. One
// struct with optional fields keeps demultiplexing in a single switch.
type ServerEnvelope struct {
	Type          Kind            `json:"type"`
	Message       string          `json:"message,omitempty"`
	RoomID        string          `json:"roomId,omitempty"`
	ExistingUsers []UserRef       `json:"existingUsers,omitempty"`
	UserID        string          `json:"userId,omitempty"`
	Username      string          `json:"username,omitempty"`
	Timestamp     time.Time       `json:"timestamp,omitempty"`
	IsTyping      bool            `json:"isTyping,omitempty"`
	From          string          `json:"from,omitempty"`
	Signal        json.RawMessage `json:"signal,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

func DecodeServerEnvelope(data []byte) (*ServerEnvelope, error) {
	var env ServerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformed
	}
	return &env, nil
}
