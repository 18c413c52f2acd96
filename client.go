// Package realtime implements a session-protocol client for realtime
// conversational voice services: it owns one transport carrier, translates
// typed commands into wire frames, demultiplexes inbound frames into a
// stable event taxonomy, and handles reconnection and auth failure.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/voicewire/realtime-go/events"
	"github.com/voicewire/realtime-go/transport"
)

// ErrNotConnected is returned by every command method when the client is
// not in the open state. Commands are never silently dropped.
var ErrNotConnected = errors.New("realtime: client not connected")

// ErrReconnectExhausted is carried by the terminal error event once the
// bounded reconnection attempts are used up.
var ErrReconnectExhausted = errors.New("realtime: reconnect attempts exhausted")

// ConnState is the client's connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Client is the session protocol client. One Client owns at most one
// transport carrier at a time; the carrier handle is only non-nil in the
// open state.
type Client struct {
	config  *clientConfig
	logger  *slog.Logger
	emitter *emitter
	io      *AudioIO

	mu             sync.Mutex
	state          ConnState
	conn           transport.Conn
	closing        bool
	sessionID      string
	conversationID string
	responseID     string
	attempt        int
	backoff        *backoff.ExponentialBackOff
	retryTimer     *time.Timer
}

// New builds a client from options. The client is disconnected until
// Connect is called.
func New(opts ...ClientOption) *Client {
	config := &clientConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	c := &Client{
		config:  config,
		logger:  config.logger,
		emitter: newEmitter(),
		backoff: newReconnectBackoff(config),
	}
	if config.audioOutput {
		c.io = NewAudioIO(60*time.Second, config.sampleRate)
	}
	return c
}

// On registers a handler for one event type, or for every event when typ is
// Wildcard. Unknown upstream event types are emitted under their raw wire
// name, so subscribing to a type the client does not model works.
func (c *Client) On(typ string, fn EventHandler) *Subscription {
	return c.emitter.on(typ, fn)
}

// State reports the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID is the upstream-assigned session id, captured from
// session.created. Empty until then.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ConversationID is the upstream-assigned conversation id, captured from
// conversation.created. Empty until then.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// AudioOutput is the decoded assistant audio stream, when the client was
// built with WithAudioOutput. Nil otherwise.
func (c *Client) AudioOutput() *AudioIO {
	return c.io
}

// Connect opens the transport. The very first attempt is never retried;
// reconnection only applies to later unexpected drops. On failure the
// client returns to disconnected and the error is both returned and emitted.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("realtime: connect while %s", state)
	}
	c.state = StateConnecting
	c.closing = false
	c.sessionID = ""
	c.conversationID = ""
	c.responseID = ""
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.emitter.emit(Event{Type: TypeError, Err: err})
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.attempt = 0
	c.backoff.Reset()
	c.mu.Unlock()

	c.logger.Info("connected", slog.String("model", c.config.model))
	c.emitter.emit(Event{Type: TypeConnected})
	return nil
}

// dial fetches a fresh credential and opens a carrier through the selected
// transport strategy.
func (c *Client) dial(ctx context.Context) (transport.Conn, error) {
	token, err := c.config.credential.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}

	h := transport.Handler{
		OnFrame: c.handleFrame,
		OnClose: c.handleClose,
	}

	switch {
	case c.config.dial != nil:
		return c.config.dial(ctx, token, h)
	case c.config.peer != nil:
		return c.dialPeer(ctx, token, h)
	default:
		return c.dialSocket(ctx, token, h)
	}
}

func (c *Client) dialSocket(ctx context.Context, token string, h transport.Handler) (transport.Conn, error) {
	cfg := transport.SocketConfig{
		URL:         fmt.Sprintf("%s?model=%s", c.config.baseURL, c.config.model),
		DialTimeout: c.config.dialTimeout,
		Logger:      c.logger,
	}
	if c.config.subprotocolAuth {
		// Runtime-restricted environments cannot set headers; the token
		// rides in the negotiated subprotocol instead.
		cfg.Subprotocols = []string{
			"realtime",
			"openai-insecure-api-key." + token,
			"openai-beta.realtime-v1",
		}
	} else {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		header.Set("OpenAI-Beta", "realtime=v1")
		cfg.Header = header
	}
	return transport.DialSocket(ctx, cfg, h)
}

func (c *Client) dialPeer(ctx context.Context, token string, h transport.Handler) (transport.Conn, error) {
	p := c.config.peer
	url := p.URL
	if url == "" {
		url = fmt.Sprintf("%s?model=%s", defaultPeerURL, c.config.model)
	}
	return transport.DialPeer(ctx, transport.PeerConfig{
		URL:           url,
		Token:         token,
		HTTPClient:    p.HTTPClient,
		ICEServers:    p.ICEServers,
		LocalTrack:    p.LocalTrack,
		OnRemoteTrack: p.OnRemoteTrack,
		Logger:        c.logger,
	}, h)
}

// Disconnect cancels any pending reconnect, closes the carrier and
// transitions to disconnected. Idempotent.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	c.stopRetryLocked()
	conn := c.conn
	if conn == nil {
		wasIdle := c.state == StateDisconnected
		c.state = StateDisconnected
		c.mu.Unlock()
		if !wasIdle {
			c.emitter.emit(Event{Type: TypeDisconnected})
		}
		return nil
	}
	c.state = StateClosing
	c.mu.Unlock()

	// handleClose finishes the transition and emits disconnected.
	return conn.Close(ctx)
}

// Send serializes any command and writes it as one frame. Most callers use
// the typed command methods instead.
func (c *Client) Send(evt any) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		return fmt.Errorf("%w: cannot send while %s", ErrNotConnected, state)
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", evt, err)
	}
	return conn.Send(data)
}

// UpdateSession issues the session-configuration command. Confirmation
// arrives asynchronously as session.created / session.updated events; no
// acknowledgement is awaited here.
func (c *Client) UpdateSession(s events.SessionUpdate) error {
	return c.Send(events.NewSessionUpdateEvent(s))
}

// AppendAudio forwards one chunk of raw audio. This is the high-frequency
// path: encoding is synchronous and O(len(pcm)), nothing blocks.
func (c *Client) AppendAudio(pcm []byte) error {
	return c.Send(events.NewInputAudioBufferAppendEvent(pcm))
}

// CommitAudio closes out the pending input audio buffer as one user turn.
func (c *Client) CommitAudio() error {
	return c.Send(events.NewInputAudioBufferCommitEvent())
}

// ClearAudio discards the pending input audio buffer.
func (c *Client) ClearAudio() error {
	return c.Send(events.NewInputAudioBufferClearEvent())
}

// CreateConversationItem appends an item to the conversation. Item shape is
// not validated beyond its discriminator; upstream is authoritative and
// answers invalid items with an error event.
func (c *Client) CreateConversationItem(item events.ConversationItem, previousItemID string) error {
	return c.Send(events.NewConversationItemCreateEvent(item, previousItemID))
}

// TruncateConversationItem shortens an item's audio content to audioEndMs.
func (c *Client) TruncateConversationItem(itemID string, contentIndex, audioEndMs int) error {
	return c.Send(events.NewConversationItemTruncateEvent(itemID, contentIndex, audioEndMs))
}

// DeleteConversationItem removes an item from the conversation.
func (c *Client) DeleteConversationItem(itemID string) error {
	return c.Send(events.NewConversationItemDeleteEvent(itemID))
}

// UserInput appends a user text message and optionally asks for a response.
func (c *Client) UserInput(text string, respond bool) error {
	if err := c.CreateConversationItem(events.TextItem(events.RoleUser, text), ""); err != nil {
		return err
	}
	if respond {
		return c.CreateResponse()
	}
	return nil
}

// CreateResponse asks for an assistant turn with session defaults.
func (c *Client) CreateResponse() error {
	return c.CreateResponseWithPayload(events.ResponseCreatePayload{})
}

// CreateResponseWithPayload asks for an assistant turn with per-response
// overrides.
func (c *Client) CreateResponseWithPayload(p events.ResponseCreatePayload) error {
	return c.Send(events.NewResponseCreateEvent(p))
}

// CancelResponse cancels the active response. Idempotent: with no response
// in flight this is a no-op, not an error.
func (c *Client) CancelResponse() error {
	c.mu.Lock()
	id := c.responseID
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	return c.Send(events.NewResponseCancelEvent(id))
}

// handleFrame demultiplexes one inbound frame. Runs on the transport's
// delivery goroutine, so emissions preserve frame order. Known types update
// session/conversation/response bookkeeping as a side effect; unknown types
// are re-emitted as-is, never swallowed.
func (c *Client) handleFrame(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Type == "" {
		// Malformed frames are dropped, not fatal to the connection.
		c.logger.Warn("dropping malformed frame", slog.Any("err", err), slog.Int("len", len(data)))
		return
	}

	evt := Event{Type: head.Type, Data: data}

	switch head.Type {
	case events.TypeError:
		parsed, err := events.Parse[events.ErrorEvent](data)
		if err != nil {
			c.logger.Warn("unparseable error event", slog.Any("err", err))
			break
		}
		if isAuthErrorCode(parsed.ErrorDetail.Code) {
			c.teardownAuth(Event{Type: TypeAuthenticationError, Data: data, Err: parsed})
			return
		}
		evt.Err = parsed

	case events.TypeSessionCreated:
		if p, err := events.Parse[events.SessionCreatedEvent](data); err == nil {
			c.mu.Lock()
			c.sessionID = p.Session.ID
			c.mu.Unlock()
		}

	case events.TypeSessionUpdated:
		if p, err := events.Parse[events.SessionUpdatedEvent](data); err == nil && p.Session.ID != "" {
			c.mu.Lock()
			c.sessionID = p.Session.ID
			c.mu.Unlock()
		}

	case events.TypeConversationCreated:
		if p, err := events.Parse[events.ConversationCreatedEvent](data); err == nil {
			c.mu.Lock()
			c.conversationID = p.Conversation.ID
			c.mu.Unlock()
		}

	case events.TypeResponseCreated:
		if p, err := events.Parse[events.ResponseCreatedEvent](data); err == nil {
			c.mu.Lock()
			c.responseID = p.Response.ID
			c.mu.Unlock()
		}

	case events.TypeResponseDone:
		if p, err := events.Parse[events.ResponseDoneEvent](data); err == nil {
			c.mu.Lock()
			if c.responseID == p.Response.ID {
				c.responseID = ""
			}
			c.mu.Unlock()
		}

	case events.TypeResponseAudioDelta:
		if c.io != nil {
			if p, err := events.Parse[events.ResponseAudioDeltaEvent](data); err == nil {
				pcm, err := events.DecodeAudio(p.Delta)
				if err != nil {
					c.logger.Warn("bad audio delta encoding", slog.Any("err", err))
				} else if _, err := c.io.write(pcm); err != nil {
					c.logger.Error("audio staging write failed", slog.Any("err", err))
				}
			}
		}

	case events.TypeInputAudioBufferSpeechStarted:
		// Barge-in: stale assistant audio must not keep playing.
		if c.io != nil {
			c.io.Clear()
		}
	}

	c.emitter.emit(evt)
}

// teardownAuth handles a non-retryable credential failure: distinguished
// signal, carrier torn down, reconnection suppressed.
func (c *Client) teardownAuth(evt Event) {
	c.mu.Lock()
	c.closing = true
	c.stopRetryLocked()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.logger.Error("authentication failed", slog.Any("err", evt.Err))
	c.emitter.emit(evt)

	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(ctx)
	}
	c.emitter.emit(Event{Type: TypeDisconnected})
}

func (c *Client) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}
