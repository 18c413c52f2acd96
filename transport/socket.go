package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// SocketConfig configures the WebSocket carrier. Authentication is carried
// in Header when the environment allows setting headers, or in Subprotocols
// as a negotiation token when it does not.
type SocketConfig struct {
	URL          string
	Header       http.Header
	Subprotocols []string
	DialTimeout  time.Duration
	Logger       *slog.Logger
}

// Socket is the message-socket carrier: one JSON object per text frame.
type Socket struct {
	conn    net.Conn
	src     io.ReadWriter
	out     chan wsutil.Message
	done    chan struct{}
	handler Handler
	logger  *slog.Logger

	finishOnce sync.Once
}

// readWriter splits the read and write sides of the wire so the read side
// can be fronted by buffered handshake leftovers.
type readWriter struct {
	io.Reader
	io.Writer
}

// DialSocket opens a WebSocket to cfg.URL and starts the read/write pumps.
// The returned Socket is open; h.OnClose fires exactly once when it stops
// being so.
func DialSocket(ctx context.Context, cfg SocketConfig, h Handler) (*Socket, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("url", cfg.URL))

	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout:   dialTimeout,
		Header:    ws.HandshakeHeaderHTTP(cfg.Header),
		Protocols: cfg.Subprotocols,
	}
	conn, buf, hs, err := d.Dial(hsCtx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("socket dial: %w", err)
	}
	logger.Debug("websocket handshake complete", slog.Any("handshake", hs))

	// A non-nil buf holds server bytes that arrived coalesced with the
	// handshake response. Those frames must be consumed before the wire or
	// they are lost.
	var src io.ReadWriter = conn
	if buf != nil {
		src = readWriter{Reader: io.MultiReader(buf, conn), Writer: conn}
	}

	s := &Socket{
		conn:    conn,
		src:     src,
		out:     make(chan wsutil.Message, 256),
		done:    make(chan struct{}),
		handler: h,
		logger:  logger,
	}

	go s.readPump()
	go s.writePump()

	return s, nil
}

// Send writes one text frame. Fails loudly once the connection left the
// open state, never silently drops.
func (s *Socket) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrNotOpen
	case s.out <- wsutil.Message{OpCode: ws.OpText, Payload: data}:
		return nil
	}
}

// Close sends a close frame and waits for the peer to acknowledge, or for
// ctx to expire, whichever comes first.
func (s *Socket) Close(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case s.out <- wsutil.Message{OpCode: ws.OpClose, Payload: ws.NewCloseFrameBody(ws.StatusNormalClosure, "closing")}:
	case <-ctx.Done():
		// A wedged write pump must not hold Close past its deadline.
		s.finish(CloseNormal, "local close")
		return fmt.Errorf("socket close: %w", ctx.Err())
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.finish(CloseNormal, "local close")
		return fmt.Errorf("socket close: %w", ctx.Err())
	}
}

// finish tears the connection down and reports the closure exactly once.
func (s *Socket) finish(code int, reason string) {
	s.finishOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
		s.logger.Debug("websocket closed", slog.Int("code", code), slog.String("reason", reason))
		if s.handler.OnClose != nil {
			s.handler.OnClose(code, reason)
		}
	})
}

func (s *Socket) readPump() {
	for {
		messages, err := wsutil.ReadServerMessage(s.src, nil)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, io.EOF) {
				s.finish(CloseAbnormal, "connection lost")
				return
			}
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				s.finish(int(closed.Code), closed.Reason)
				return
			}
			s.logger.Error("websocket read failed", slog.Any("err", err))
			s.finish(CloseAbnormal, err.Error())
			return
		}

		for _, msg := range messages {
			if ws.OpCode.IsControl(msg.OpCode) {
				if err := wsutil.HandleServerControlMessage(s.src, msg); err != nil {
					var closed wsutil.ClosedError
					if errors.As(err, &closed) {
						s.finish(int(closed.Code), closed.Reason)
						return
					}
					s.logger.Error("control message handling failed", slog.Any("err", err))
				}
				if msg.OpCode == ws.OpClose {
					code, reason := ws.ParseCloseFrameData(msg.Payload)
					if code == 0 {
						code = ws.StatusNormalClosure
					}
					s.finish(int(code), reason)
					return
				}
				continue
			}

			if msg.OpCode == ws.OpText && s.handler.OnFrame != nil {
				s.handler.OnFrame(msg.Payload)
			}
		}
	}
}

func (s *Socket) writePump() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			if err := wsutil.WriteClientMessage(s.conn, msg.OpCode, msg.Payload); err != nil {
				s.logger.Error("websocket write failed", slog.Any("err", err))
				s.finish(CloseAbnormal, err.Error())
				return
			}
		}
	}
}
