// Package client holds the connection manager and the peer mesh: the
// two stateful pieces a participant runs locally. The manager owns the
// socket and its repair loop; the mesh owns one peer link per remote
// participant.
package client

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"geochat/internal/protocol"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateJoined
	StateReconnecting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateJoined:
		return "joined"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrConnectionFailed is the terminal condition after the reconnect
// budget is exhausted. Everything else is recovered in place.
var ErrConnectionFailed = errors.New("connection failed after max reconnect attempts")

type Config struct {
	URL      string
	RoomID   string
	UserID   string
	Username string

	MaxReconnectAttempts int
	BaseReconnectDelay   time.Duration
	MaxReconnectDelay    time.Duration
}

func (c *Config) withDefaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.BaseReconnectDelay == 0 {
		c.BaseReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 10 * time.Second
	}
}

// Manager drives one logical client session:
// Idle -> Connecting -> Open -> Joined, with a Reconnecting sub-path on
// abnormal closure. The join handshake is sent as soon as the transport
// opens; Joined is entered only on the server's acknowledgment.
type Manager struct {
	// OnEvent receives every decoded server envelope; chat UI and the
	// mesh demultiplex kinds from this single callback.
	OnEvent func(*protocol.ServerEnvelope)
	// OnConnected fires once per logical session, on the first join
	// acknowledgment, and is not re-fired by reconnects.
	OnConnected func()
	// OnDisconnected fires on every transport loss, deliberate or not.
	OnDisconnected func()
	// OnFailure fires once with ErrConnectionFailed when retries run out.
	OnFailure func(error)

	cfg Config

	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	attempts      int
	connectedOnce bool
	closing       bool
	retryTimer    *time.Timer

	// writeMu serializes every frame written to the socket; gorilla
	// supports only one concurrent writer, and Send, the reconnect
	// handshake and Disconnect all run on different goroutines.
	writeMu sync.Mutex
}

func (m *Manager) writeJSON(conn *websocket.Conn, v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func NewManager(cfg Config) *Manager {
	cfg.withDefaults()
	return &Manager{cfg: cfg, state: StateIdle}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts a fresh logical session. A dial failure counts as an
// abnormal closure and enters the retry path; the returned error is
// informational for the first attempt.
func (m *Manager) Connect() error {
	m.mu.Lock()
	m.closing = false
	m.connectedOnce = false
	m.attempts = 0
	m.state = StateConnecting
	m.mu.Unlock()
	return m.dial()
}

func (m *Manager) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(m.cfg.URL, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "client.manager").Msg("dial failed")
		m.scheduleReconnect()
		return err
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.conn = conn
	m.state = StateOpen
	m.mu.Unlock()

	// Join handshake goes out immediately on open.
	join := protocol.NewJoinRequest(m.cfg.RoomID, m.cfg.UserID, m.cfg.Username)
	if err := m.writeJSON(conn, join); err != nil {
		log.Warn().Err(err).Str("module", "client.manager").Msg("join handshake write failed")
	}

	go m.readLoop(conn)
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClosure(err)
			return
		}
		env, err := protocol.DecodeServerEnvelope(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client.manager").Msg("undecodable server event")
			continue
		}
		m.handleEvent(env)
	}
}

func (m *Manager) handleEvent(env *protocol.ServerEnvelope) {
	if env.Type == protocol.KindJoined {
		m.mu.Lock()
		m.state = StateJoined
		m.attempts = 0
		first := !m.connectedOnce
		m.connectedOnce = true
		m.mu.Unlock()
		if first && m.OnConnected != nil {
			m.OnConnected()
		}
	}
	if m.OnEvent != nil {
		m.OnEvent(env)
	}
}

func (m *Manager) handleClosure(err error) {
	m.mu.Lock()
	m.conn = nil
	deliberate := m.closing || websocket.IsCloseError(err, websocket.CloseNormalClosure)
	if deliberate {
		m.state = StateClosed
	}
	m.mu.Unlock()

	if m.OnDisconnected != nil {
		m.OnDisconnected()
	}
	if deliberate {
		return
	}
	log.Warn().Err(err).Str("module", "client.manager").Msg("abnormal closure")
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closing || m.state == StateClosed || m.state == StateFailed {
		m.mu.Unlock()
		return
	}
	m.attempts++
	if m.attempts > m.cfg.MaxReconnectAttempts {
		m.state = StateFailed
		m.mu.Unlock()
		log.Error().Str("module", "client.manager").Msg("max reconnect attempts reached")
		if m.OnFailure != nil {
			m.OnFailure(ErrConnectionFailed)
		}
		return
	}
	delay := m.nextDelay(m.attempts)
	m.state = StateReconnecting
	m.retryTimer = time.AfterFunc(delay, m.redial)
	attempt := m.attempts
	m.mu.Unlock()

	log.Info().Str("module", "client.manager").Int("attempt", attempt).
		Dur("delay", delay).Msg("reconnect scheduled")
}

// nextDelay doubles from the base each attempt, capped at the max.
func (m *Manager) nextDelay(attempt int) time.Duration {
	d := m.cfg.BaseReconnectDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.MaxReconnectDelay {
			return m.cfg.MaxReconnectDelay
		}
	}
	if d > m.cfg.MaxReconnectDelay {
		d = m.cfg.MaxReconnectDelay
	}
	return d
}

func (m *Manager) redial() {
	m.mu.Lock()
	if m.closing || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()
	_ = m.dial()
}

// Send marshals and writes one envelope. It reports false when the
// transport is not currently open instead of blocking or buffering.
func (m *Manager) Send(env protocol.ClientEnvelope) bool {
	m.mu.Lock()
	conn := m.conn
	ok := conn != nil && (m.state == StateOpen || m.state == StateJoined)
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := m.writeJSON(conn, env); err != nil {
		log.Warn().Err(err).Str("module", "client.manager").Msg("send failed")
		return false
	}
	return true
}

// Disconnect ends the logical session: it cancels any pending retry,
// optionally sends a leave envelope, and closes with the code both
// sides treat as "no reconnect".
func (m *Manager) Disconnect(sendLeave bool) {
	m.mu.Lock()
	m.closing = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = StateClosed
	m.mu.Unlock()

	if conn == nil {
		return
	}
	m.writeMu.Lock()
	if sendLeave {
		if err := conn.WriteJSON(protocol.NewLeaveRequest()); err != nil {
			log.Warn().Err(err).Str("module", "client.manager").Msg("leave write failed")
		}
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client left"), deadline)
	m.writeMu.Unlock()
	_ = conn.Close()
}
