// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDTooLong   = errors.New("user id too long")
)

type UserID string

type User struct {
	ID       UserID `json:"userId"`
	Username string `json:"username"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
// The id is client-declared; an empty one gets a generated fallback.
func NewUser(id UserID, username string) (*User, error) {
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	if id == "" {
		id = UserID(uuid.NewString())
	}
	return &User{ID: id, Username: username}, nil
}
