package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAudioRoundTrip(t *testing.T) {
	for _, buf := range [][]byte{
		{},
		{0x7f},
		{1, 2, 3, 4, 5}, // length not a multiple of 3
	} {
		enc := EncodeAudio(buf)
		dec, err := DecodeAudio(enc)
		require.NoError(t, err)
		require.Equal(t, buf, append([]byte{}, dec...))
	}
}

func TestDecodeAudioRejectsGarbage(t *testing.T) {
	_, err := DecodeAudio("not base64!!!")
	require.Error(t, err)
}

func TestAppendEventCarriesEncodedAudio(t *testing.T) {
	evt := NewInputAudioBufferAppendEvent([]byte{0, 1, 2})

	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	require.Equal(t, TypeInputAudioBufferAppend, wire["type"])
	require.Equal(t, EncodeAudio([]byte{0, 1, 2}), wire["audio"])
	require.NotEmpty(t, wire["event_id"])
}

func TestCommandTypes(t *testing.T) {
	require.Equal(t, TypeSessionUpdate, NewSessionUpdateEvent(SessionUpdate{}).Type)
	require.Equal(t, TypeInputAudioBufferCommit, NewInputAudioBufferCommitEvent().Type)
	require.Equal(t, TypeInputAudioBufferClear, NewInputAudioBufferClearEvent().Type)
	require.Equal(t, TypeConversationItemCreate, NewConversationItemCreateEvent(ConversationItem{}, "").Type)
	require.Equal(t, TypeConversationItemTruncate, NewConversationItemTruncateEvent("item_1", 0, 1500).Type)
	require.Equal(t, TypeConversationItemDelete, NewConversationItemDeleteEvent("item_1").Type)
	require.Equal(t, TypeResponseCreate, NewResponseCreateEvent(ResponseCreatePayload{}).Type)
	require.Equal(t, TypeResponseCancel, NewResponseCancelEvent("resp_1").Type)
}

func TestTruncateCommandShape(t *testing.T) {
	data, err := json.Marshal(NewConversationItemTruncateEvent("item_9", 0, 2400))
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	require.Equal(t, "item_9", wire["item_id"])
	require.EqualValues(t, 0, wire["content_index"])
	require.EqualValues(t, 2400, wire["audio_end_ms"])
}

func TestParseErrorEvent(t *testing.T) {
	raw := []byte(`{
		"type": "error",
		"event_id": "evt_1",
		"error": {"type": "invalid_request_error", "code": "invalid_api_key", "message": "bad key"}
	}`)

	evt, err := Parse[ErrorEvent](raw)
	require.NoError(t, err)
	require.Equal(t, "invalid_api_key", evt.ErrorDetail.Code)
	require.Equal(t, "invalid_api_key: bad key", evt.Error())
}

func TestPartialSessionUpdateOmitsUnsetFields(t *testing.T) {
	data, err := json.Marshal(NewSessionUpdateEvent(SessionUpdate{Voice: "coral"}))
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	session := wire["session"].(map[string]any)
	require.Equal(t, "coral", session["voice"])
	require.NotContains(t, session, "instructions")
	require.NotContains(t, session, "turn_detection")
}
