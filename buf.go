package realtime

import (
	"fmt"
	"io"
)

// ChunkReader re-cuts an arbitrary reader into fixed-size chunks so audio
// leaves in uniform frames regardless of how the source delivers bytes. The
// final chunk before EOF may be short.
type ChunkReader struct {
	r    io.Reader
	rest []byte
	size int
	eof  bool
}

func NewChunkReader(r io.Reader, size int) *ChunkReader {
	return &ChunkReader{
		r:    r,
		size: size,
		rest: make([]byte, 0, size*2),
	}
}

func (c *ChunkReader) Read(p []byte) (int, error) {
	if len(p) < c.size {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", c.size)
	}

	for len(c.rest) < c.size && !c.eof {
		tmp := make([]byte, c.size)
		n, err := c.r.Read(tmp)
		if n > 0 {
			c.rest = append(c.rest, tmp[:n]...)
		}
		if err == io.EOF {
			c.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(c.rest) == 0 && c.eof {
		return 0, io.EOF
	}

	n := c.size
	if len(c.rest) < n {
		n = len(c.rest)
	}
	copy(p, c.rest[:n])
	c.rest = c.rest[n:]

	return n, nil
}
