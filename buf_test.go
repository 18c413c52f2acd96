package realtime

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// drip delivers one byte per Read to exercise re-chunking.
type drip struct {
	data []byte
}

func (d *drip) Read(p []byte) (int, error) {
	if len(d.data) == 0 {
		return 0, io.EOF
	}
	p[0] = d.data[0]
	d.data = d.data[1:]
	return 1, nil
}

func TestChunkReaderEmitsFullChunks(t *testing.T) {
	src := bytes.Repeat([]byte{0xaa}, 10)
	cr := NewChunkReader(&drip{data: src}, 4)

	buf := make([]byte, 4)

	n, err := cr.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = cr.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	// Trailing partial chunk before EOF.
	n, err = cr.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = cr.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestChunkReaderRejectsSmallBuffer(t *testing.T) {
	cr := NewChunkReader(bytes.NewReader([]byte{1, 2, 3}), 8)
	_, err := cr.Read(make([]byte, 4))
	require.Error(t, err)
}

func TestChunkReaderPreservesBytes(t *testing.T) {
	src := []byte("the quick brown fox jumps over the lazy dog")
	cr := NewChunkReader(bytes.NewReader(src), 7)

	var got []byte
	buf := make([]byte, 7)
	for {
		n, err := cr.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	require.Equal(t, src, got)
}
