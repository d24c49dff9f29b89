package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"geochat/internal/core"
	"geochat/internal/domain"
	"geochat/internal/protocol"
)

// Relay is the signaling pass-through. It looks the target up inside
// the sender's current room and forwards the payload verbatim; the
// signal blob itself is never parsed here.
type Relay struct {
	Registry *Registry
}

// Forward delivers {webrtc-signal, from, signal} to exactly one target
// session. A sender that is not joined, or a target that is absent from
// the sender's room, drops the message silently: the originating peer
// simply times out its own negotiation.
func (r *Relay) Forward(s *core.Session, target domain.UserID, signal json.RawMessage) bool {
	if !s.Joined() {
		return false
	}
	member, ok := r.Registry.FindByUser(s.RoomID, target)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("from", string(s.UserID)).
			Str("to", string(target)).Msg("signal target not in room, dropped")
		return false
	}
	if !member.Conn.IsOpen() {
		return false
	}

	payload, err := json.Marshal(protocol.SignalEvent{
		Type:   protocol.KindSignal,
		From:   string(s.UserID),
		Signal: signal,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("marshal signal envelope")
		return false
	}
	if err := member.Conn.TrySend(payload); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("to", string(target)).Msg("signal send failed")
		return false
	}
	return true
}
