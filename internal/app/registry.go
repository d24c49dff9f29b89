package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"geochat/internal/core"
	"geochat/internal/domain"
)

// Registry is the single source of truth for "who is in which room".
// roomID maps to the set of sessions currently joined to it. Entries
// are created lazily on first join and deleted the instant they empty,
// so a missing entry always means zero active connections.
//
// The registry is the only writer of Session.RoomID/UserID/Username/State
// after construction; it is injected into the engine and relay rather
// than living as a package global so tests get isolated instances.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[core.SessionID]*core.Session
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]map[core.SessionID]*core.Session)}
}

// Member is a point-in-time copy of one session's identity plus its
// transport. Snapshots hand these out so callers never dereference
// another session's mutable fields outside the registry lock; Conn is
// immutable after construction and safe to use from any goroutine.
type Member struct {
	SID      core.SessionID
	Conn     core.Conn
	UserID   domain.UserID
	Username string
}

// Join moves a session into roomID, detaching it from any previous room
// first. It returns the former room-mates (with the identity the session
// had there) and a snapshot of the target room taken before the session
// became visible, so a joiner never sees itself in its own member list.
func (r *Registry) Join(s *core.Session, roomID domain.RoomID, user *domain.User) (former []Member, formerUser domain.User, existing []Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	formerUser = s.User()
	former = r.detachLocked(s)

	existing = r.snapshotLocked(roomID)

	entry, ok := r.rooms[roomID]
	if !ok {
		entry = make(map[core.SessionID]*core.Session)
		r.rooms[roomID] = entry
	}
	entry[s.ID] = s
	s.RoomID = roomID
	s.UserID = user.ID
	s.Username = user.Username
	s.State = core.StateJoined

	log.Info().Str("module", "app.registry").Str("sid", string(s.ID)).
		Str("room", string(roomID)).Str("user", string(user.ID)).Msg("session joined room")
	return former, formerUser, existing
}

// Leave detaches the session from its room. The second call is a no-op.
// The remaining room-mates and the identity the session held are
// returned so the caller can emit user_left.
func (r *Registry) Leave(s *core.Session) (mates []Member, who domain.User, left bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !s.Joined() {
		return nil, domain.User{}, false
	}
	who = s.User()
	roomID := s.RoomID
	mates = r.detachLocked(s)

	log.Info().Str("module", "app.registry").Str("sid", string(s.ID)).
		Str("room", string(roomID)).Msg("session left room")
	return mates, who, true
}

// detachLocked removes s from its current entry, deleting the entry if
// it emptied, and returns the members that remain. Caller holds mu.
func (r *Registry) detachLocked(s *core.Session) []Member {
	if s.RoomID == "" {
		return nil
	}
	entry, ok := r.rooms[s.RoomID]
	if ok {
		delete(entry, s.ID)
		if len(entry) == 0 {
			delete(r.rooms, s.RoomID)
			log.Debug().Str("module", "app.registry").Str("room", string(s.RoomID)).Msg("empty room entry dropped")
		}
	}
	remaining := r.snapshotLocked(s.RoomID)
	s.RoomID = ""
	s.State = core.StateConnected
	return remaining
}

func (r *Registry) snapshotLocked(roomID domain.RoomID) []Member {
	entry, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]Member, 0, len(entry))
	for _, s := range entry {
		out = append(out, Member{SID: s.ID, Conn: s.Conn, UserID: s.UserID, Username: s.Username})
	}
	return out
}

// MembersOf returns a point-in-time snapshot of the room's members.
// Broadcasts iterate this snapshot, never the live set.
func (r *Registry) MembersOf(roomID domain.RoomID) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(roomID)
}

// FindByUser locates the member of roomID whose declared user id
// matches. Used by the signaling relay to address exactly one target.
func (r *Registry) FindByUser(roomID domain.RoomID, userID domain.UserID) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.rooms[roomID] {
		if s.UserID == userID {
			return Member{SID: s.ID, Conn: s.Conn, UserID: s.UserID, Username: s.Username}, true
		}
	}
	return Member{}, false
}

// Count reports the number of active connections in a room.
func (r *Registry) Count(roomID domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// RoomCounts lists every room that has at least one live session.
func (r *Registry) RoomCounts() map[domain.RoomID]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.RoomID]int, len(r.rooms))
	for id, entry := range r.rooms {
		out[id] = len(entry)
	}
	return out
}

// SessionTotal is the sum of sessions across all entries.
func (r *Registry) SessionTotal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, entry := range r.rooms {
		total += len(entry)
	}
	return total
}
