package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"geochat/internal/app"
	"geochat/internal/core"
	"geochat/internal/domain"
	"geochat/internal/protocol"
)

type stubDirectory struct {
	rooms map[domain.RoomID]*domain.Room
}

func (d *stubDirectory) GetRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	room, ok := d.rooms[id]
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	return room, nil
}

type stubStore struct {
	nextID uint64
}

func (s *stubStore) SaveMessage(_ context.Context, m *domain.Message) (*domain.Message, error) {
	s.nextID++
	m.ID = s.nextID
	m.CreatedAt = time.Now().UTC()
	return m, nil
}

func (s *stubStore) ListMessages(context.Context, domain.RoomID, int) ([]*domain.Message, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := &app.Engine{
		Registry: app.NewRegistry(),
		Directory: &stubDirectory{rooms: map[domain.RoomID]*domain.Room{
			"r1": {ID: "r1", Name: "Harbour Square", Type: domain.RoomTypeMixed},
		}},
		Store: &stubStore{},
	}
	ctl := &Controller{Engine: engine, Relay: &app.Relay{Registry: engine.Registry}}

	ctx, cancel := context.WithCancel(context.Background())
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) { ctl.HandleWS(ctx, c) })

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// awaitKind reads until an envelope of the wanted kind arrives, skipping
// interleaved presence traffic.
func awaitKind(t *testing.T, conn *websocket.Conn, kind protocol.Kind) *protocol.ServerEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", kind)
		env, err := protocol.DecodeServerEnvelope(data)
		require.NoError(t, err)
		if env.Type == kind {
			return env
		}
	}
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID, userID, username string) *protocol.ServerEnvelope {
	t.Helper()
	require.NoError(t, conn.WriteJSON(protocol.NewJoinRequest(roomID, userID, username)))
	return awaitKind(t, conn, protocol.KindJoined)
}

func TestJoinAckAndPresenceOverWire(t *testing.T) {
	srv := newTestServer(t)
	connA := dialWS(t, srv)
	connB := dialWS(t, srv)

	ackA := joinRoom(t, connA, "r1", "ua", "alice")
	require.Equal(t, "r1", ackA.RoomID)
	require.Empty(t, ackA.ExistingUsers)

	ackB := joinRoom(t, connB, "r1", "ub", "bob")
	require.Len(t, ackB.ExistingUsers, 1)
	require.Equal(t, "ua", ackB.ExistingUsers[0].UserID)

	joined := awaitKind(t, connA, protocol.KindUserJoined)
	require.Equal(t, "ub", joined.UserID)
	require.Equal(t, "bob", joined.Username)
}

func TestChatReachesEveryMemberOverWire(t *testing.T) {
	srv := newTestServer(t)
	connA := dialWS(t, srv)
	connB := dialWS(t, srv)
	joinRoom(t, connA, "r1", "ua", "alice")
	joinRoom(t, connB, "r1", "ub", "bob")

	require.NoError(t, connA.WriteJSON(protocol.NewChatRequest("hello out there")))

	for _, conn := range []*websocket.Conn{connA, connB} {
		env := awaitKind(t, conn, protocol.KindNewMessage)
		var m domain.Message
		require.NoError(t, json.Unmarshal(env.Data, &m))
		require.Equal(t, "hello out there", m.Content)
		require.Equal(t, domain.UserID("ua"), m.UserID)
	}
}

func TestSignalRelayedVerbatimOverWire(t *testing.T) {
	srv := newTestServer(t)
	connA := dialWS(t, srv)
	connB := dialWS(t, srv)
	joinRoom(t, connA, "r1", "ua", "alice")
	joinRoom(t, connB, "r1", "ub", "bob")

	blob := json.RawMessage(`{"type":"offer","sdp":"v=0 fake"}`)
	require.NoError(t, connA.WriteJSON(protocol.NewSignalRequest("ub", blob)))

	env := awaitKind(t, connB, protocol.KindSignal)
	require.Equal(t, "ua", env.From)
	require.JSONEq(t, string(blob), string(env.Signal))
}

func TestJoinUnknownRoomGetsErrorReply(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(protocol.NewJoinRequest("nope", "ua", "alice")))
	env := awaitKind(t, conn, protocol.KindError)
	require.Equal(t, "Room not found", env.Message)
}

func TestBadInputNeverKillsTheConnection(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env := awaitKind(t, conn, protocol.KindError)
	require.Equal(t, "invalid message format", env.Message)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "selfdestruct"}))
	env = awaitKind(t, conn, protocol.KindError)
	require.Equal(t, "unknown message type", env.Message)

	// The same socket still joins fine afterwards.
	ack := joinRoom(t, conn, "r1", "ua", "alice")
	require.Equal(t, "r1", ack.RoomID)
}

func TestChatBeforeJoinIsRejectedOverWire(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(protocol.NewChatRequest("hi")))
	env := awaitKind(t, conn, protocol.KindError)
	require.Equal(t, core.ErrNotJoined.Error(), env.Message)
}

func TestDisconnectBroadcastsUserLeft(t *testing.T) {
	srv := newTestServer(t)
	connA := dialWS(t, srv)
	connB := dialWS(t, srv)
	joinRoom(t, connA, "r1", "ua", "alice")
	joinRoom(t, connB, "r1", "ub", "bob")
	awaitKind(t, connA, protocol.KindUserJoined)

	require.NoError(t, connB.Close())

	left := awaitKind(t, connA, protocol.KindUserLeft)
	require.Equal(t, "ub", left.UserID)
	require.Equal(t, "bob", left.Username)
}
