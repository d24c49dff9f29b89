package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"geochat/internal/core"
	"geochat/internal/domain"
)

type fakeConn struct {
	mu   sync.Mutex
	open bool
	fail bool
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{open: true}
}

func (c *fakeConn) TrySend(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return core.ErrConnClosed
	}
	if c.fail {
		return core.ErrBackpressure
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

// kinds decodes the "type" discriminator of everything sent so far.
func (c *fakeConn) kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, raw := range c.sent {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(raw, &env)
		out = append(out, env.Type)
	}
	return out
}

func (c *fakeConn) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeDirectory struct {
	rooms map[domain.RoomID]*domain.Room
}

func newFakeDirectory(rooms ...*domain.Room) *fakeDirectory {
	d := &fakeDirectory{rooms: make(map[domain.RoomID]*domain.Room)}
	for _, r := range rooms {
		d.rooms[r.ID] = r
	}
	return d
}

func (d *fakeDirectory) GetRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	room, ok := d.rooms[id]
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	return room, nil
}

type fakeStore struct {
	mu     sync.Mutex
	nextID uint64
	saved  []*domain.Message
}

func (s *fakeStore) SaveMessage(_ context.Context, m *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	m.CreatedAt = time.Now().UTC()
	s.saved = append(s.saved, m)
	return m, nil
}

func (s *fakeStore) ListMessages(_ context.Context, roomID domain.RoomID, limit int) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Message
	for _, m := range s.saved {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
