package realtime

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/smallnest/ringbuffer"
)

// AudioIO stages decoded assistant audio between the protocol client and
// the presentation layer's playback path. The client writes each
// response.audio.delta payload in; playback drains Output at its own pace.
// speech_started clears the buffer so interrupted responses stop promptly.
type AudioIO struct {
	buf *ringbuffer.RingBuffer
}

func NewAudioIO(capacity time.Duration, sampleRate int) *AudioIO {
	size := chunkSize(sampleRate, capacity, 2, 1)
	return &AudioIO{
		buf: ringbuffer.New(size).SetBlocking(true),
	}
}

// Output is the playback side: blocking reads of raw PCM.
func (a *AudioIO) Output() io.Reader {
	return a.buf
}

// Clear drops all buffered audio.
func (a *AudioIO) Clear() {
	a.buf.Reset()
}

func (a *AudioIO) write(p []byte) (int, error) {
	return a.buf.Write(p)
}

// chunkSize is the byte length of one chunk of audio of the given duration.
func chunkSize(sampleRate int, d time.Duration, bytesPerSample, channels int) int {
	frames := int(float64(sampleRate) * d.Seconds())
	return frames * bytesPerSample * channels
}

// StreamAudio pumps microphone audio from r into the input audio buffer,
// one latency-sized chunk per append-audio command, until r is exhausted or
// ctx is done. Meant to run on its own goroutine for the life of a turn or
// connection.
func (c *Client) StreamAudio(ctx context.Context, r io.Reader) error {
	size := chunkSize(c.config.sampleRate, c.config.latency(), 2, 1)
	cr := NewChunkReader(r, size)
	buf := make([]byte, size)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := cr.Read(buf)
		if n > 0 {
			if sendErr := c.AppendAudio(buf[:n]); sendErr != nil {
				return sendErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
