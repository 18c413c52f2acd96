// Package transport provides the carriers a session protocol client runs on:
// a persistent WebSocket, or a WebRTC peer connection with a negotiated data
// channel. Both deliver inbound JSON frames in arrival order through a
// Handler and accept outbound frames via Send.
package transport

import (
	"context"
	"errors"
)

// Close codes reported to Handler.OnClose. The socket carrier reports the
// WebSocket status code; the peer carrier maps channel and connection
// failures onto the same space.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006
	ClosePolicy    = 1008
	CloseInternal  = 1011
)

// ErrNotOpen is returned by Send when the carrier is not in the open state.
var ErrNotOpen = errors.New("transport: connection not open")

// Handler receives carrier callbacks. OnFrame is invoked once per inbound
// frame, from a single goroutine, in the order frames arrived. OnClose is
// invoked exactly once, for both local and remote closure.
type Handler struct {
	OnFrame func(data []byte)
	OnClose func(code int, reason string)
}

// Conn is one open carrier. A Conn belongs to exactly one protocol client
// and is not reusable after Close.
type Conn interface {
	// Send transmits one JSON frame. Returns ErrNotOpen once the carrier
	// has left the open state.
	Send(data []byte) error

	// Close performs an orderly shutdown, waiting for the peer's
	// acknowledgement until ctx expires.
	Close(ctx context.Context) error
}
