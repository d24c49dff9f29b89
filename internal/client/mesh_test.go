package client

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"geochat/internal/protocol"
)

type sentSignal struct {
	to      string
	payload signalPayload
	raw     json.RawMessage
}

// newTestMesh builds a mesh with started media and no STUN servers, so
// negotiation needs no network, and taps every outgoing signal.
func newTestMesh(t *testing.T) (*Mesh, chan sentSignal) {
	t.Helper()
	out := make(chan sentSignal, 32)
	m := NewMesh(func(to string, raw json.RawMessage) bool {
		var p signalPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.Errorf("mesh emitted undecodable signal: %v", err)
			return false
		}
		out <- sentSignal{to: to, payload: p, raw: raw}
		return true
	})
	m.ICEServers = nil
	require.NoError(t, m.StartLocalMedia(NullCapture))
	t.Cleanup(m.Close)
	return m, out
}

func waitForSignal(t *testing.T, ch chan sentSignal, kind string) sentSignal {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.payload.Type == kind {
				return s
			}
		case <-deadline:
			t.Fatalf("no %q signal emitted", kind)
		}
	}
}

func TestOpenLocalMediaWrapsCaptureFailure(t *testing.T) {
	boom := errors.New("device busy")
	_, err := OpenLocalMedia(func() (webrtc.TrackLocal, webrtc.TrackLocal, error) {
		return nil, nil, boom
	})
	require.ErrorIs(t, err, ErrMediaUnavailable)

	_, err = OpenLocalMedia(nil)
	require.ErrorIs(t, err, ErrMediaUnavailable)

	_, err = OpenLocalMedia(func() (webrtc.TrackLocal, webrtc.TrackLocal, error) {
		return nil, nil, nil
	})
	require.ErrorIs(t, err, ErrMediaUnavailable, "capture with no tracks at all")
}

func TestNullCaptureEnablesBothDevices(t *testing.T) {
	media, err := OpenLocalMedia(NullCapture)
	require.NoError(t, err)
	require.True(t, media.CameraOn())
	require.True(t, media.MicOn())
	require.Len(t, media.Tracks(), 2)

	require.False(t, media.ToggleCamera())
	require.False(t, media.CameraOn())
	require.True(t, media.ToggleCamera(), "toggle flips back")
	require.False(t, media.ToggleMic())
	require.True(t, media.CameraOn(), "mic toggle leaves the camera alone")
}

func TestAddPeerRequiresLocalMedia(t *testing.T) {
	out := make(chan sentSignal, 1)
	m := NewMesh(func(to string, raw json.RawMessage) bool {
		out <- sentSignal{to: to, raw: raw}
		return true
	})

	m.AddPeer("peer-1")
	require.False(t, m.HasPeer("peer-1"))
	require.Empty(t, out)
}

func TestAddPeerEmitsOfferOnce(t *testing.T) {
	m, out := newTestMesh(t)

	m.AddPeer("peer-1")
	m.AddPeer("peer-1") // second call is a no-op

	require.Len(t, m.Peers(), 1)
	offer := waitForSignal(t, out, "offer")
	require.Equal(t, "peer-1", offer.to)
	require.NotEmpty(t, offer.payload.SDP)
}

func TestHandleSignalAnswersInboundOffer(t *testing.T) {
	caller, callerOut := newTestMesh(t)
	callee, calleeOut := newTestMesh(t)

	caller.AddPeer("callee")
	offer := waitForSignal(t, callerOut, "offer")

	callee.HandleSignal("caller", offer.raw)
	require.True(t, callee.HasPeer("caller"), "inbound offer creates a non-initiator link")

	answer := waitForSignal(t, calleeOut, "answer")
	require.Equal(t, "caller", answer.to)
	require.NotEmpty(t, answer.payload.SDP)
}

func TestHandleSignalBeforeMediaIsDropped(t *testing.T) {
	m := NewMesh(func(string, json.RawMessage) bool { return true })
	m.HandleSignal("peer-1", json.RawMessage(`{"type":"offer","sdp":"v=0"}`))
	require.False(t, m.HasPeer("peer-1"))
}

func TestHandleSignalQueuesEarlyCandidates(t *testing.T) {
	caller, callerOut := newTestMesh(t)
	callee, _ := newTestMesh(t)

	caller.AddPeer("callee")
	offer := waitForSignal(t, callerOut, "offer")

	// A candidate that outruns the offer must not be lost or crash the
	// link; it is queued until the remote description lands.
	early, err := json.Marshal(signalPayload{
		Type: "candidate",
		Candidate: &webrtc.ICECandidateInit{
			Candidate: "candidate:1 1 UDP 2122252543 192.0.2.1 54321 typ host",
		},
	})
	require.NoError(t, err)

	callee.HandleSignal("caller", early)
	require.True(t, callee.HasPeer("caller"), "early candidate still creates the link")
	callee.HandleSignal("caller", offer.raw)
}

func TestMeshEventBridgeTracksPresence(t *testing.T) {
	m, out := newTestMesh(t)
	bridge := MeshEventBridge(m)

	bridge(&protocol.ServerEnvelope{
		Type: protocol.KindJoined,
		ExistingUsers: []protocol.UserRef{
			{UserID: "ua", Username: "alice"},
			{UserID: "ub", Username: "bob"},
		},
	})
	require.True(t, m.HasPeer("ua"))
	require.True(t, m.HasPeer("ub"))
	waitForSignal(t, out, "offer")

	bridge(&protocol.ServerEnvelope{Type: protocol.KindUserLeft, UserID: "ua"})
	require.False(t, m.HasPeer("ua"))
	require.True(t, m.HasPeer("ub"))
}

func TestRemovePeerIsIdempotent(t *testing.T) {
	m, out := newTestMesh(t)

	m.AddPeer("peer-1")
	waitForSignal(t, out, "offer")

	m.RemovePeer("peer-1")
	require.False(t, m.HasPeer("peer-1"))
	m.RemovePeer("peer-1") // already gone
	require.Empty(t, m.Peers())
}
