package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"geochat/internal/core"
	"geochat/internal/domain"
	"geochat/internal/protocol"
)

// Engine applies join/leave/typing/chat events to the registry and fans
// the resulting events out to the right session set. Collaborator calls
// (room lookup, message persistence) always complete before any
// registry mutation for the same operation.
type Engine struct {
	Registry  *Registry
	Directory core.RoomDirectory
	Store     core.MessageStore
	Limiter   *RateLimiter

	// Now is a seam for tests; nil means time.Now.
	Now func() time.Time
}

func (e *Engine) timestamp() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Join validates the room, moves the session into it, acks the joiner
// with the member list captured before it became visible, and only then
// broadcasts user_joined to the others. The ack-first order lets the
// joiner build its peer mesh before anyone tries to reach it.
func (e *Engine) Join(ctx context.Context, s *core.Session, roomID domain.RoomID, user *domain.User) error {
	if _, err := e.Directory.GetRoom(ctx, roomID); err != nil {
		return err
	}

	former, formerUser, existing := e.Registry.Join(s, roomID, user)

	if len(former) > 0 {
		e.broadcast(former, protocol.NewUserLeft(string(formerUser.ID), formerUser.Username, e.timestamp()))
	}

	refs := make([]protocol.UserRef, 0, len(existing))
	for _, member := range existing {
		refs = append(refs, protocol.UserRef{UserID: string(member.UserID), Username: member.Username})
	}
	e.sendTo(s, protocol.NewJoined(string(roomID), refs))

	e.broadcast(existing, protocol.NewUserJoined(string(user.ID), user.Username, e.timestamp()))

	log.Info().Str("module", "app.engine").Str("sid", string(s.ID)).
		Str("room", string(roomID)).Str("username", user.Username).Msg("join complete")
	return nil
}

// SendChat persists the message and broadcasts new_message to every
// member of the room, the sender included. There is no optimistic local
// echo; the sender sees its own message only after this round trip.
func (e *Engine) SendChat(ctx context.Context, s *core.Session, content string) error {
	if !s.Joined() {
		return core.ErrNotJoined
	}
	if err := domain.ValidateContent(content); err != nil {
		return err
	}
	if e.Limiter != nil && !e.Limiter.Allow(s.UserID) {
		return core.ErrRateLimited
	}

	room, err := e.Directory.GetRoom(ctx, s.RoomID)
	if err != nil {
		return err
	}
	if !room.SupportsText() {
		return core.ErrUnsupportedRoomType
	}

	stored, err := e.Store.SaveMessage(ctx, &domain.Message{
		RoomID:   s.RoomID,
		UserID:   s.UserID,
		Username: s.Username,
		Content:  content,
		Type:     "text",
	})
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	e.broadcast(e.Registry.MembersOf(s.RoomID), protocol.NewMessageEvent{
		Type: protocol.KindNewMessage,
		Data: stored,
	})
	return nil
}

// Typing is best-effort: no-op when not joined, never persisted, and
// excludes the sender from the fan-out.
func (e *Engine) Typing(s *core.Session, isTyping bool) {
	if !s.Joined() {
		return
	}
	e.broadcastExcept(e.Registry.MembersOf(s.RoomID), s.ID, protocol.TypingEvent{
		Type:     protocol.KindUserTyping,
		UserID:   string(s.UserID),
		Username: s.Username,
		IsTyping: isTyping,
	})
}

// Leave detaches the session and tells the remaining members. Calling
// it on a session that is not in a room is a no-op.
func (e *Engine) Leave(s *core.Session) bool {
	mates, who, left := e.Registry.Leave(s)
	if !left {
		return false
	}
	e.broadcast(mates, protocol.NewUserLeft(string(who.ID), who.Username, e.timestamp()))
	return true
}

// OnClose handles transport teardown. Leave-then-close is safe; the
// second detach is a no-op.
func (e *Engine) OnClose(s *core.Session) {
	e.Leave(s)
}

func (e *Engine) sendTo(s *core.Session, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.engine").Msg("marshal event")
		return
	}
	e.deliver(Member{SID: s.ID, Conn: s.Conn}, payload)
}

// broadcast fans payload out over a snapshot; one stale recipient never
// aborts delivery to the rest.
func (e *Engine) broadcast(members []Member, v any) {
	e.broadcastExcept(members, "", v)
}

func (e *Engine) broadcastExcept(members []Member, skip core.SessionID, v any) {
	if len(members) == 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.engine").Msg("marshal event")
		return
	}
	for _, m := range members {
		if skip != "" && m.SID == skip {
			continue
		}
		e.deliver(m, payload)
	}
}

func (e *Engine) deliver(m Member, payload []byte) {
	if !m.Conn.IsOpen() {
		return
	}
	if err := m.Conn.TrySend(payload); err != nil {
		log.Warn().Err(err).Str("module", "app.engine").Str("sid", string(m.SID)).Msg("send failed, skipping recipient")
	}
}
