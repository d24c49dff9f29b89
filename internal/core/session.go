package core

import "geochat/internal/domain"

type SessionID string

type SessionState int

const (
	// StateConnected means the transport is up but no join happened yet.
	StateConnected SessionState = iota
	// StateJoined means the session belongs to exactly one room.
	StateJoined
)

// Session is the server-side record for one live client connection.
// Identity and membership live here, not on the socket; the registry is
// the single writer of RoomID/State after construction.
type Session struct {
	ID       SessionID
	Conn     Conn
	UserID   domain.UserID
	Username string
	RoomID   domain.RoomID
	State    SessionState
}

func NewSession(id SessionID, conn Conn) *Session {
	return &Session{ID: id, Conn: conn, State: StateConnected}
}

func (s *Session) Joined() bool {
	return s.State == StateJoined && s.RoomID != ""
}

func (s *Session) User() domain.User {
	return domain.User{ID: s.UserID, Username: s.Username}
}
