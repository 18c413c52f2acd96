package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/voicewire/realtime-go/events"
)

func TestStreamAudioChunksInput(t *testing.T) {
	var conns []*fakeConn
	c := newTestClient(t, &conns, nil,
		WithSampleRate(8_000),
		WithLatency(1), // 16-byte chunks
	)
	require.NoError(t, c.Connect(context.Background()))

	src := bytes.Repeat([]byte{0x01, 0x02}, 20) // 40 bytes: 16 + 16 + 8
	require.NoError(t, c.StreamAudio(context.Background(), bytes.NewReader(src)))

	conns[0].mu.Lock()
	defer conns[0].mu.Unlock()
	require.Len(t, conns[0].sent, 3)

	var got []byte
	for _, frame := range conns[0].sent {
		var evt events.InputAudioBufferAppendEvent
		require.NoError(t, json.Unmarshal(frame, &evt))
		require.Equal(t, events.TypeInputAudioBufferAppend, evt.Type)
		pcm, err := events.DecodeAudio(evt.Audio)
		require.NoError(t, err)
		got = append(got, pcm...)
	}
	require.Equal(t, src, got)
}

func TestStreamAudioWhileDisconnected(t *testing.T) {
	var conns []*fakeConn
	c := newTestClient(t, &conns, nil, WithSampleRate(8_000), WithLatency(1))

	err := c.StreamAudio(context.Background(), bytes.NewReader(make([]byte, 64)))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestAudioOutputStagesDeltas(t *testing.T) {
	var conns []*fakeConn
	c := newTestClient(t, &conns, nil, WithAudioOutput())
	require.NoError(t, c.Connect(context.Background()))
	require.NotNil(t, c.AudioOutput())

	pcm := []byte{10, 20, 30, 40}
	frame := fmt.Sprintf(`{"type":"response.audio.delta","item_id":"item_1","delta":%q}`,
		events.EncodeAudio(pcm))
	conns[0].h.OnFrame([]byte(frame))

	buf := make([]byte, len(pcm))
	done := make(chan struct{})
	go func() {
		defer close(done)
		n, err := c.AudioOutput().Output().Read(buf)
		require.NoError(t, err)
		require.Equal(t, len(pcm), n)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("staged audio never readable")
	}
	require.Equal(t, pcm, buf)
}

func TestAudioOutputDisabledByDefault(t *testing.T) {
	var conns []*fakeConn
	c := newTestClient(t, &conns, nil)
	require.Nil(t, c.AudioOutput())

	require.NoError(t, c.Connect(context.Background()))

	// Audio deltas without staging are still emitted, just not buffered.
	var deltas int
	c.On(events.TypeResponseAudioDelta, func(Event) { deltas++ })
	conns[0].h.OnFrame([]byte(`{"type":"response.audio.delta","delta":"AAAA"}`))
	require.Equal(t, 1, deltas)
}
