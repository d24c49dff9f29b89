package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeKind(t *testing.T) {
	kind, err := DecodeKind([]byte(`{"type":"join","roomId":"r1"}`))
	require.NoError(t, err)
	require.Equal(t, KindJoin, kind)

	kind, err = DecodeKind([]byte(`{"roomId":"r1"}`))
	require.NoError(t, err)
	require.Equal(t, Kind(""), kind, "missing discriminator decodes to empty kind")

	_, err = DecodeKind([]byte(`{not json`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodePayload(t *testing.T) {
	var join JoinPayload
	err := DecodePayload([]byte(`{"type":"join","roomId":"r1","userId":"ua","username":"alice"}`), &join)
	require.NoError(t, err)
	require.Equal(t, "r1", join.RoomID)
	require.Equal(t, "ua", join.UserID)
	require.Equal(t, "alice", join.Username)

	var chat ChatPayload
	require.ErrorIs(t, DecodePayload([]byte(`{"content":`), &chat), ErrMalformed)
}

func TestNewJoinedNeverEncodesNullMembers(t *testing.T) {
	raw, err := json.Marshal(NewJoined("r1", nil))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"existingUsers":[]`)
}

func TestSignalRoundTripPreservesPayload(t *testing.T) {
	blob := json.RawMessage(`{"type":"candidate","candidate":{"candidate":"candidate:1 1 UDP 2122252543 192.0.2.1 54321 typ host","sdpMid":"0"}}`)
	raw, err := json.Marshal(SignalEvent{Type: KindSignal, From: "ua", Signal: blob})
	require.NoError(t, err)

	env, err := DecodeServerEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, KindSignal, env.Type)
	require.Equal(t, "ua", env.From)
	require.JSONEq(t, string(blob), string(env.Signal))
}

func TestClientEnvelopeOmitsUnsetFields(t *testing.T) {
	raw, err := json.Marshal(NewChatRequest("hi"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"message","content":"hi"}`, string(raw))

	raw, err = json.Marshal(NewLeaveRequest())
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"leave"}`, string(raw))
}

func TestDecodeServerEnvelopeCarriesMessageData(t *testing.T) {
	env, err := DecodeServerEnvelope([]byte(`{"type":"new_message","data":{"id":7,"content":"hi"}}`))
	require.NoError(t, err)
	require.Equal(t, KindNewMessage, env.Type)

	var data struct {
		ID      uint64 `json:"id"`
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, uint64(7), data.ID)
	require.Equal(t, "hi", data.Content)
}
