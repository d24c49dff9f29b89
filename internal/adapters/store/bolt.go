// Package store implements the room directory and message persistence
// collaborators on top of a local bbolt file. The realtime engine only
// sees the core interfaces; swapping this for a remote CRUD service is
// a wiring change.
package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"geochat/internal/core"
	"geochat/internal/domain"
)

var (
	bucketRooms    = []byte("rooms")
	bucketMessages = []byte("messages")
)

type Bolt struct {
	db *bolt.DB
}

func Open(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRooms); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMessages)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store buckets: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// CreateRoom validates and stores a room, assigning an id when the
// caller did not bring one.
func (b *Bolt) CreateRoom(_ context.Context, room *domain.Room) (*domain.Room, error) {
	if err := domain.ValidateRoomName(room.Name); err != nil {
		return nil, err
	}
	if !room.Type.Valid() {
		return nil, domain.ErrBadRoomType
	}
	if room.ID == "" {
		room.ID = domain.RoomID(uuid.NewString())
	}

	raw, err := msgpack.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("encode room: %w", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRooms).Put([]byte(room.ID), raw)
	})
	if err != nil {
		return nil, fmt.Errorf("store room: %w", err)
	}
	return room, nil
}

func (b *Bolt) GetRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	var room *domain.Room
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRooms).Get([]byte(id))
		if raw == nil {
			return core.ErrRoomNotFound
		}
		room = &domain.Room{}
		return msgpack.Unmarshal(raw, room)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (b *Bolt) ListRooms(_ context.Context) ([]*domain.Room, error) {
	var rooms []*domain.Room
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRooms).ForEach(func(_, raw []byte) error {
			var room domain.Room
			if err := msgpack.Unmarshal(raw, &room); err != nil {
				return err
			}
			rooms = append(rooms, &room)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// SaveMessage appends the message to the room's bucket under a
// monotonic sequence key and returns the stored record.
func (b *Bolt) SaveMessage(_ context.Context, m *domain.Message) (*domain.Message, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		roomBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(m.RoomID))
		if err != nil {
			return err
		}
		seq, err := roomBucket.NextSequence()
		if err != nil {
			return err
		}
		m.ID = seq

		raw, err := msgpack.Marshal(m)
		if err != nil {
			return err
		}
		return roomBucket.Put(seqKey(seq), raw)
	})
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	return m, nil
}

// ListMessages returns up to limit most recent messages in
// chronological order.
func (b *Bolt) ListMessages(_ context.Context, roomID domain.RoomID, limit int) ([]*domain.Message, error) {
	var out []*domain.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		roomBucket := tx.Bucket(bucketMessages).Bucket([]byte(roomID))
		if roomBucket == nil {
			return nil
		}
		c := roomBucket.Cursor()
		for k, raw := c.Last(); k != nil; k, raw = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var m domain.Message
			if err := msgpack.Unmarshal(raw, &m); err != nil {
				return err
			}
			out = append(out, &m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	// Cursor walked newest-first; flip to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
