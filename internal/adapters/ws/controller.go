package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"geochat/internal/app"
	"geochat/internal/core"
	"geochat/internal/domain"
	"geochat/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller owns the websocket endpoint: it upgrades the connection,
// creates the Session, runs the pumps and dispatches inbound envelopes
// to the engine and relay.
type Controller struct {
	Engine *app.Engine
	Relay  *app.Relay

	ReadLimit  int64
	PingPeriod time.Duration
}

func (ctl *Controller) pingPeriod() time.Duration {
	if ctl.PingPeriod > 0 {
		return ctl.PingPeriod
	}
	return (pongWait * 9) / 10
}

func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	sid := c.GetString("client_token")
	if sid == "" {
		sid = uuid.NewString()
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "adapters.ws").Str("sid", sid).Msg("new WS connection")

	conn := newWSConn(socket)
	sess := core.NewSession(core.SessionID(sid), conn)

	ctx, cancel := context.WithCancel(ctx)
	go conn.writePump(ctx, ctl.pingPeriod())
	go ctl.readPump(ctx, cancel, sess, conn)
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess *core.Session, conn *WSConn) {
	defer func() {
		log.Info().Str("module", "adapters.ws").Str("sid", string(sess.ID)).Msg("readPump closing")
		ctl.Engine.OnClose(sess)
		conn.Close()
		cancel()
	}()

	if ctl.ReadLimit > 0 {
		conn.ws.SetReadLimit(ctl.ReadLimit)
	}
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "adapters.ws").Str("sid", string(sess.ID)).Msg("readPump read error")
				}
				return
			}
			ctl.dispatch(ctx, sess, conn, data)
		}
	}
}

// dispatch routes one inbound envelope. Every failure turns into an
// error reply; the connection is never terminated for bad input.
func (ctl *Controller) dispatch(ctx context.Context, sess *core.Session, conn *WSConn, data []byte) {
	kind, err := protocol.DecodeKind(data)
	if err != nil {
		ctl.reply(conn, protocol.NewError("invalid message format"))
		return
	}

	switch kind {
	case protocol.KindJoin:
		ctl.handleJoin(ctx, sess, conn, data)
	case protocol.KindMessage:
		ctl.handleMessage(ctx, sess, conn, data)
	case protocol.KindTyping:
		ctl.handleTyping(sess, conn, data)
	case protocol.KindLeave:
		ctl.Engine.Leave(sess)
	case protocol.KindSignal:
		ctl.handleSignal(sess, conn, data)
	default:
		log.Warn().Str("module", "adapters.ws").Str("kind", string(kind)).Msg("unknown envelope kind")
		ctl.reply(conn, protocol.NewError("unknown message type"))
	}
}

func (ctl *Controller) handleJoin(ctx context.Context, sess *core.Session, conn *WSConn, data []byte) {
	var p protocol.JoinPayload
	if err := protocol.DecodePayload(data, &p); err != nil {
		ctl.reply(conn, protocol.NewError("invalid message format"))
		return
	}
	user, err := domain.NewUser(domain.UserID(p.UserID), p.Username)
	if err != nil {
		ctl.reply(conn, protocol.NewError(err.Error()))
		return
	}

	if err := ctl.Engine.Join(ctx, sess, domain.RoomID(p.RoomID), user); err != nil {
		if errors.Is(err, core.ErrRoomNotFound) {
			ctl.reply(conn, protocol.NewError("Room not found"))
			return
		}
		log.Error().Err(err).Str("module", "adapters.ws").Str("sid", string(sess.ID)).Msg("join failed")
		ctl.reply(conn, protocol.NewError("Failed to join room"))
	}
}

func (ctl *Controller) handleMessage(ctx context.Context, sess *core.Session, conn *WSConn, data []byte) {
	var p protocol.ChatPayload
	if err := protocol.DecodePayload(data, &p); err != nil {
		ctl.reply(conn, protocol.NewError("invalid message format"))
		return
	}

	err := ctl.Engine.SendChat(ctx, sess, p.Content)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotJoined),
		errors.Is(err, core.ErrRoomNotFound),
		errors.Is(err, core.ErrUnsupportedRoomType),
		errors.Is(err, core.ErrRateLimited),
		errors.Is(err, domain.ErrMessageEmpty),
		errors.Is(err, domain.ErrMessageTooLong):
		ctl.reply(conn, protocol.NewError(err.Error()))
	default:
		log.Error().Err(err).Str("module", "adapters.ws").Str("sid", string(sess.ID)).Msg("chat failed")
		ctl.reply(conn, protocol.NewError("Failed to send message"))
	}
}

func (ctl *Controller) handleTyping(sess *core.Session, conn *WSConn, data []byte) {
	var p protocol.TypingPayload
	if err := protocol.DecodePayload(data, &p); err != nil {
		ctl.reply(conn, protocol.NewError("invalid message format"))
		return
	}
	ctl.Engine.Typing(sess, p.IsTyping)
}

func (ctl *Controller) handleSignal(sess *core.Session, conn *WSConn, data []byte) {
	var p protocol.SignalPayload
	if err := protocol.DecodePayload(data, &p); err != nil {
		ctl.reply(conn, protocol.NewError("invalid message format"))
		return
	}
	// Undeliverable signals are dropped, not error replies; the caller's
	// peer negotiation times out on its own.
	ctl.Relay.Forward(sess, domain.UserID(p.To), p.Signal)
}

func (ctl *Controller) reply(conn *WSConn, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("marshal reply")
		return
	}
	_ = conn.TrySend(payload)
}
