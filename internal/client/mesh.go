package client

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"geochat/internal/protocol"
)

// SendSignalFunc carries an opaque signal blob to one remote user,
// normally wired to Manager.Send with a webrtc-signal envelope.
type SendSignalFunc func(to string, signal json.RawMessage) bool

// signalPayload is the blob the two endpoints exchange through the
// relay. The server never parses it.
type signalPayload struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// PeerLink is one peer connection to one remote participant.
type PeerLink struct {
	PeerID    string
	pc        *webrtc.PeerConnection
	initiator bool

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	remote    []*webrtc.TrackRemote
}

// RemoteTracks returns the media received from this peer so far.
func (l *PeerLink) RemoteTracks() []*webrtc.TrackRemote {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*webrtc.TrackRemote, len(l.remote))
	copy(out, l.remote)
	return out
}

// Mesh keeps one PeerLink per remote participant: every participant
// connects directly to every other. O(n^2) links is the accepted
// ceiling for small rooms.
type Mesh struct {
	// OnRemoteTrack fires when a peer's media arrives.
	OnRemoteTrack func(peerID string, track *webrtc.TrackRemote)
	// OnPeerClosed fires when a link dies on its own (ICE failure);
	// it is not called for explicit RemovePeer.
	OnPeerClosed func(peerID string)

	ICEServers []webrtc.ICEServer

	sendSignal SendSignalFunc

	mu    sync.Mutex
	media *LocalMedia
	links map[string]*PeerLink
}

func NewMesh(send SendSignalFunc) *Mesh {
	return &Mesh{
		sendSignal: send,
		links:      make(map[string]*PeerLink),
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
	}
}

// StartLocalMedia opens the capture backend. Callers must check the
// error before adding peers; ErrMediaUnavailable leaves the mesh usable
// for a later retry.
func (m *Mesh) StartLocalMedia(capture CaptureFunc) error {
	media, err := OpenLocalMedia(capture)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.media = media
	m.mu.Unlock()
	return nil
}

func (m *Mesh) Media() *LocalMedia {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media
}

func (m *Mesh) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.links))
	for id := range m.links {
		out = append(out, id)
	}
	return out
}

func (m *Mesh) HasPeer(peerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.links[peerID]
	return ok
}

// AddPeer creates an initiator link to peerID. It is a no-op when the
// link already exists or local media has not been started yet; the
// caller retries after StartLocalMedia succeeds.
func (m *Mesh) AddPeer(peerID string) {
	m.mu.Lock()
	if m.media == nil {
		m.mu.Unlock()
		log.Debug().Str("module", "client.mesh").Str("peer", peerID).Msg("no local media yet, addPeer deferred")
		return
	}
	if _, ok := m.links[peerID]; ok {
		m.mu.Unlock()
		return
	}
	link, err := m.newLinkLocked(peerID, true)
	m.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("module", "client.mesh").Str("peer", peerID).Msg("create peer link")
		return
	}
	go m.sendOffer(link)
}

// HandleSignal applies one relayed blob. A signal from an unknown peer
// creates a non-initiator link first, covering the case where the
// remote side initiated. Peer stack errors are logged per-peer and
// never affect other links.
func (m *Mesh) HandleSignal(from string, signal json.RawMessage) {
	m.mu.Lock()
	link, ok := m.links[from]
	if !ok {
		if m.media == nil {
			m.mu.Unlock()
			log.Debug().Str("module", "client.mesh").Str("peer", from).Msg("signal before local media, dropped")
			return
		}
		var err error
		link, err = m.newLinkLocked(from, false)
		if err != nil {
			m.mu.Unlock()
			log.Error().Err(err).Str("module", "client.mesh").Str("peer", from).Msg("create peer link for inbound signal")
			return
		}
	}
	m.mu.Unlock()

	var p signalPayload
	if err := json.Unmarshal(signal, &p); err != nil {
		log.Warn().Err(err).Str("module", "client.mesh").Str("peer", from).Msg("bad signal payload")
		return
	}
	if err := m.apply(link, &p); err != nil {
		log.Error().Err(err).Str("module", "client.mesh").Str("peer", from).
			Str("signal", p.Type).Msg("apply signal")
	}
}

func (m *Mesh) apply(link *PeerLink, p *signalPayload) error {
	switch p.Type {
	case "offer":
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}
		if err := link.pc.SetRemoteDescription(offer); err != nil {
			return err
		}
		link.flushPending()
		answer, err := link.pc.CreateAnswer(nil)
		if err != nil {
			return err
		}
		if err := link.pc.SetLocalDescription(answer); err != nil {
			return err
		}
		m.emitSignal(link.PeerID, signalPayload{Type: "answer", SDP: answer.SDP})
		return nil

	case "answer":
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}
		if err := link.pc.SetRemoteDescription(answer); err != nil {
			return err
		}
		link.flushPending()
		return nil

	case "candidate":
		if p.Candidate == nil {
			return nil
		}
		return link.addCandidate(*p.Candidate)
	}
	log.Warn().Str("module", "client.mesh").Str("signal", p.Type).Msg("unknown signal type")
	return nil
}

// RemovePeer tears the link down and discards it. Safe on a peer that
// is already gone; any in-flight negotiation for that peer dies with
// the connection, other links are untouched.
func (m *Mesh) RemovePeer(peerID string) {
	m.mu.Lock()
	link, ok := m.links[peerID]
	if ok {
		delete(m.links, peerID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := link.pc.Close(); err != nil {
		log.Warn().Err(err).Str("module", "client.mesh").Str("peer", peerID).Msg("close peer link")
	}
	log.Info().Str("module", "client.mesh").Str("peer", peerID).Msg("peer link removed")
}

// Close tears down every link.
func (m *Mesh) Close() {
	for _, id := range m.Peers() {
		m.RemovePeer(id)
	}
}

// newLinkLocked builds the peer connection, publishes local tracks and
// wires the signaling and track callbacks. Caller holds m.mu.
func (m *Mesh) newLinkLocked(peerID string, initiator bool) (*PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: m.ICEServers})
	if err != nil {
		return nil, err
	}
	link := &PeerLink{PeerID: peerID, pc: pc, initiator: initiator}

	for _, track := range m.media.Tracks() {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, err
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		ci := c.ToJSON()
		m.emitSignal(peerID, signalPayload{Type: "candidate", Candidate: &ci})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		link.mu.Lock()
		link.remote = append(link.remote, track)
		link.mu.Unlock()
		log.Info().Str("module", "client.mesh").Str("peer", peerID).
			Str("kind", track.Kind().String()).Msg("remote track")
		if m.OnRemoteTrack != nil {
			m.OnRemoteTrack(peerID, track)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed {
			log.Warn().Str("module", "client.mesh").Str("peer", peerID).Msg("peer connection failed")
			m.RemovePeer(peerID)
			if m.OnPeerClosed != nil {
				m.OnPeerClosed(peerID)
			}
		}
	})

	m.links[peerID] = link
	log.Info().Str("module", "client.mesh").Str("peer", peerID).
		Bool("initiator", initiator).Msg("peer link created")
	return link, nil
}

func (m *Mesh) sendOffer(link *PeerLink) {
	offer, err := link.pc.CreateOffer(nil)
	if err != nil {
		log.Error().Err(err).Str("module", "client.mesh").Str("peer", link.PeerID).Msg("create offer")
		return
	}
	if err := link.pc.SetLocalDescription(offer); err != nil {
		log.Error().Err(err).Str("module", "client.mesh").Str("peer", link.PeerID).Msg("set local description")
		return
	}
	m.emitSignal(link.PeerID, signalPayload{Type: "offer", SDP: offer.SDP})
}

func (m *Mesh) emitSignal(peerID string, p signalPayload) {
	raw, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Str("module", "client.mesh").Msg("marshal signal payload")
		return
	}
	if !m.sendSignal(peerID, raw) {
		log.Warn().Str("module", "client.mesh").Str("peer", peerID).
			Str("signal", p.Type).Msg("signal not sent, transport not open")
	}
}

// addCandidate queues candidates that race ahead of the remote
// description and applies them once it lands.
func (l *PeerLink) addCandidate(ci webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, ci)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(ci)
}

func (l *PeerLink) flushPending() {
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, ci := range pending {
		if err := l.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "client.mesh").Str("peer", l.PeerID).Msg("apply queued candidate")
		}
	}
}

// MeshEventBridge routes the manager's presence and signaling events
// into mesh mutations: joined seeds initiator links to the existing
// members, user_joined waits for that member to signal or is added by
// the UI, user_left tears the link down.
func MeshEventBridge(mesh *Mesh) func(*protocol.ServerEnvelope) {
	return func(env *protocol.ServerEnvelope) {
		switch env.Type {
		case protocol.KindJoined:
			for _, u := range env.ExistingUsers {
				mesh.AddPeer(u.UserID)
			}
		case protocol.KindUserLeft:
			mesh.RemovePeer(env.UserID)
		case protocol.KindSignal:
			mesh.HandleSignal(env.From, env.Signal)
		}
	}
}
