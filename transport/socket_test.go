package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
)

// wsFixture is an in-process WebSocket server handing each upgraded
// connection to fn.
func wsFixture(t *testing.T, fn func(conn net.Conn, r *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		fn(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	closed chan closeInfo
}

type closeInfo struct {
	code   int
	reason string
}

func newRecorder() *recorder {
	return &recorder{closed: make(chan closeInfo, 1)}
}

func (r *recorder) handler() Handler {
	return Handler{
		OnFrame: func(data []byte) {
			r.mu.Lock()
			r.frames = append(r.frames, append([]byte(nil), data...))
			r.mu.Unlock()
		},
		OnClose: func(code int, reason string) {
			r.closed <- closeInfo{code: code, reason: reason}
		},
	}
}

func (r *recorder) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestSocketReceivesFramesInOrder(t *testing.T) {
	payloads := []string{
		`{"type":"session.created"}`,
		`{"type":"response.created"}`,
		`{"type":"response.done"}`,
	}

	url := wsFixture(t, func(conn net.Conn, _ *http.Request) {
		for _, p := range payloads {
			require.NoError(t, wsutil.WriteServerText(conn, []byte(p)))
		}
	})

	rec := newRecorder()
	s, err := DialSocket(context.Background(), SocketConfig{URL: url}, rec.handler())
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Close(ctx)
	}()

	require.Eventually(t, func() bool {
		return rec.frameCount() == len(payloads)
	}, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, p := range payloads {
		require.JSONEq(t, p, string(rec.frames[i]))
	}
}

// TestSocketDeliversFramesCoalescedWithHandshake writes the 101 response
// and the first frames in a single segment, so they land in the dialer's
// handshake buffer rather than on the wire.
func TestSocketDeliversFramesCoalescedWithHandshake(t *testing.T) {
	payloads := []string{
		`{"type":"session.created"}`,
		`{"type":"session.updated"}`,
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		var key string
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "Sec-WebSocket-Key:") {
				key = strings.TrimSpace(strings.TrimPrefix(line, "Sec-WebSocket-Key:"))
			}
			if line == "\r\n" {
				break
			}
		}

		accept := sha1.Sum([]byte(key + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"))

		var out bytes.Buffer
		out.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
		out.WriteString("Upgrade: websocket\r\n")
		out.WriteString("Connection: Upgrade\r\n")
		out.WriteString("Sec-WebSocket-Accept: " + base64.StdEncoding.EncodeToString(accept[:]) + "\r\n\r\n")
		for _, p := range payloads {
			_ = ws.WriteFrame(&out, ws.NewTextFrame([]byte(p)))
		}
		if _, err := conn.Write(out.Bytes()); err != nil {
			return
		}

		// Keep the connection open until the client is done asserting.
		_, _ = io.Copy(io.Discard, conn)
	}()

	rec := newRecorder()
	s, err := DialSocket(context.Background(), SocketConfig{
		URL: "ws://" + ln.Addr().String(),
	}, rec.handler())
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Close(ctx)
	}()

	require.Eventually(t, func() bool {
		return rec.frameCount() == len(payloads)
	}, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, p := range payloads {
		require.JSONEq(t, p, string(rec.frames[i]))
	}
}

func TestSocketSendReachesServer(t *testing.T) {
	received := make(chan []byte, 1)

	url := wsFixture(t, func(conn net.Conn, _ *http.Request) {
		data, err := wsutil.ReadClientText(conn)
		require.NoError(t, err)
		received <- data
	})

	rec := newRecorder()
	s, err := DialSocket(context.Background(), SocketConfig{URL: url}, rec.handler())
	require.NoError(t, err)

	require.NoError(t, s.Send([]byte(`{"type":"response.create"}`)))

	select {
	case data := <-received:
		require.JSONEq(t, `{"type":"response.create"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the frame")
	}
}

func TestSocketCarriesAuthHeader(t *testing.T) {
	headers := make(chan string, 1)

	url := wsFixture(t, func(conn net.Conn, r *http.Request) {
		headers <- r.Header.Get("Authorization")
	})

	header := http.Header{}
	header.Set("Authorization", "Bearer tok_123")

	rec := newRecorder()
	_, err := DialSocket(context.Background(), SocketConfig{URL: url, Header: header}, rec.handler())
	require.NoError(t, err)

	select {
	case got := <-headers:
		require.Equal(t, "Bearer tok_123", got)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake never observed")
	}
}

func TestSocketCarriesSubprotocolToken(t *testing.T) {
	protocols := make(chan string, 1)

	url := wsFixture(t, func(conn net.Conn, r *http.Request) {
		protocols <- r.Header.Get("Sec-WebSocket-Protocol")
	})

	rec := newRecorder()
	_, err := DialSocket(context.Background(), SocketConfig{
		URL: url,
		Subprotocols: []string{
			"realtime",
			"openai-insecure-api-key.tok_123",
			"openai-beta.realtime-v1",
		},
	}, rec.handler())
	require.NoError(t, err)

	select {
	case got := <-protocols:
		require.Contains(t, got, "realtime")
		require.Contains(t, got, "openai-insecure-api-key.tok_123")
		require.Contains(t, got, "openai-beta.realtime-v1")
	case <-time.After(2 * time.Second):
		t.Fatal("handshake never observed")
	}
}

func TestSocketReportsServerClose(t *testing.T) {
	url := wsFixture(t, func(conn net.Conn, _ *http.Request) {
		frame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "done"))
		require.NoError(t, ws.WriteFrame(conn, frame))
	})

	rec := newRecorder()
	s, err := DialSocket(context.Background(), SocketConfig{URL: url}, rec.handler())
	require.NoError(t, err)

	select {
	case info := <-rec.closed:
		require.Equal(t, CloseNormal, info.code)
	case <-time.After(2 * time.Second):
		t.Fatal("close never reported")
	}

	require.ErrorIs(t, s.Send([]byte(`{}`)), ErrNotOpen)
}

func TestSocketReportsAbnormalClose(t *testing.T) {
	url := wsFixture(t, func(conn net.Conn, _ *http.Request) {
		_ = conn.Close()
	})

	rec := newRecorder()
	_, err := DialSocket(context.Background(), SocketConfig{URL: url}, rec.handler())
	require.NoError(t, err)

	select {
	case info := <-rec.closed:
		require.Equal(t, CloseAbnormal, info.code)
	case <-time.After(2 * time.Second):
		t.Fatal("close never reported")
	}
}

// TestSocketCloseHonorsContextWithStalledWriter builds a Socket whose write
// pump never drains the out channel; Close must give up at the deadline
// instead of blocking on the enqueue.
func TestSocketCloseHonorsContextWithStalledWriter(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })

	s := &Socket{
		conn:   client,
		src:    client,
		out:    make(chan wsutil.Message),
		done:   make(chan struct{}),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Close(ctx)
	require.ErrorIs(t, err, context.Canceled)

	select {
	case <-s.done:
	default:
		t.Fatal("connection not torn down")
	}
}

func TestSocketDialFailure(t *testing.T) {
	rec := newRecorder()
	_, err := DialSocket(context.Background(), SocketConfig{
		URL:         "ws://127.0.0.1:1", // nothing listens here
		DialTimeout: 200 * time.Millisecond,
	}, rec.handler())
	require.Error(t, err)

	// A failed dial must not report a closure.
	select {
	case <-rec.closed:
		t.Fatal("unexpected close callback")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSocketLocalClose(t *testing.T) {
	url := wsFixture(t, func(conn net.Conn, _ *http.Request) {
		// Echo the close handshake.
		for {
			msgs, err := wsutil.ReadClientMessage(conn, nil)
			if err != nil {
				return
			}
			for _, msg := range msgs {
				if msg.OpCode == ws.OpClose {
					_ = wsutil.HandleClientControlMessage(conn, msg)
					_ = conn.Close()
					return
				}
			}
		}
	})

	rec := newRecorder()
	s, err := DialSocket(context.Background(), SocketConfig{URL: url}, rec.handler())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	select {
	case info := <-rec.closed:
		require.Equal(t, CloseNormal, info.code)
	case <-time.After(2 * time.Second):
		t.Fatal("close never reported")
	}
}
