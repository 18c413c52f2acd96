package realtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/pion/webrtc/v4"
	"github.com/voicewire/realtime-go/events"
	"github.com/voicewire/realtime-go/tool"
	"github.com/voicewire/realtime-go/transport"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"

	defaultSocketURL = "wss://api.openai.com/v1/realtime"
	defaultPeerURL   = "https://api.openai.com/v1/realtime"
)

// TransportFactory opens a carrier for one connection attempt. Overriding
// it replaces the built-in socket/peer strategies entirely.
type TransportFactory func(ctx context.Context, token string, h transport.Handler) (transport.Conn, error)

// PeerOptions selects the WebRTC carrier.
type PeerOptions struct {
	// URL overrides the default SDP negotiation endpoint.
	URL           string
	HTTPClient    *http.Client
	ICEServers    []webrtc.ICEServer
	LocalTrack    webrtc.TrackLocal
	OnRemoteTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

type clientConfig struct {
	model      string
	baseURL    string
	credential CredentialProvider

	instructions       string
	language           string
	voice              string
	temperature        float64
	speed              float64
	modalities         []events.Modality
	maxOutputTokens    any
	transcriptionModel string
	turnDetection      *events.TurnDetection
	tools              []tool.Tool

	sampleRate  int
	latencyMS   int
	audioOutput bool

	logger      *slog.Logger
	dialTimeout time.Duration

	reconnectBase        time.Duration
	reconnectMax         time.Duration
	reconnectMaxAttempts int

	subprotocolAuth bool
	peer            *PeerOptions
	dial            TransportFactory
}

func (c *clientConfig) latency() time.Duration {
	return time.Duration(c.latencyMS) * time.Millisecond
}

func (c *clientConfig) validate() error {
	if c.credential == nil {
		return fmt.Errorf("missing credential")
	}
	if c.model == "" {
		return fmt.Errorf("missing model")
	}
	if c.reconnectBase <= 0 || c.reconnectMax < c.reconnectBase {
		return fmt.Errorf("invalid reconnect delays: base=%s max=%s", c.reconnectBase, c.reconnectMax)
	}
	return nil
}

// DefaultSessionUpdate renders the configured session parameters as a
// configure-session command. The client never sends this on its own — not
// even after a reconnect; issuing it is the caller's move.
func (c *Client) DefaultSessionUpdate() events.SessionUpdate {
	cfg := c.config
	s := events.SessionUpdate{
		Modalities:        cfg.modalities,
		Instructions:      cfg.instructions,
		Voice:             cfg.voice,
		InputAudioFormat:  events.AudioFormatPCM16,
		OutputAudioFormat: events.AudioFormatPCM16,
		Temperature:       cfg.temperature,
		Speed:             cfg.speed,
		TurnDetection:     cfg.turnDetection,
		Tools:             cfg.tools,
	}
	if cfg.maxOutputTokens != nil {
		s.MaxResponseOutputTokens = cfg.maxOutputTokens
	}
	if cfg.transcriptionModel != "" {
		s.InputAudioTranscription = &events.InputAudioTranscription{
			Model:    cfg.transcriptionModel,
			Language: cfg.language,
		}
	}
	if len(cfg.tools) > 0 {
		s.ToolChoice = tool.ChoiceAuto
	}
	return s
}

type ClientOption func(*clientConfig)

func WithModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.model = model
	}
}

// WithBaseURL overrides the socket endpoint (wss scheme).
func WithBaseURL(url string) ClientOption {
	return func(o *clientConfig) {
		o.baseURL = url
	}
}

func WithCredential(p CredentialProvider) ClientOption {
	return func(o *clientConfig) {
		if p != nil {
			o.credential = p
		}
	}
}

func WithKey(apiKey string) ClientOption {
	return WithCredential(StaticCredential(apiKey))
}

func WithEnvKey(vars ...string) ClientOption {
	return WithCredential(EnvCredential(vars...))
}

func WithInstructions(instructions string) ClientOption {
	return func(o *clientConfig) {
		o.instructions = instructions
	}
}

func WithLanguage(language string) ClientOption {
	return func(o *clientConfig) {
		o.language = language
	}
}

func WithVoice(voice string) ClientOption {
	return func(o *clientConfig) {
		o.voice = voice
	}
}

func WithTemperature(temperature float64) ClientOption {
	return func(o *clientConfig) {
		o.temperature = temperature
	}
}

func WithSpeed(speed float64) ClientOption {
	return func(o *clientConfig) {
		o.speed = speed
	}
}

func WithModalities(m ...events.Modality) ClientOption {
	return func(o *clientConfig) {
		o.modalities = m
	}
}

// WithMaxOutputTokens caps response length. Pass events.MaxTokensUnbounded
// for no cap.
func WithMaxOutputTokens(v any) ClientOption {
	return func(o *clientConfig) {
		o.maxOutputTokens = v
	}
}

func WithTranscriptionModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.transcriptionModel = model
	}
}

func WithTurnDetection(td *events.TurnDetection) ClientOption {
	return func(o *clientConfig) {
		o.turnDetection = td
	}
}

func WithTools(tools ...tool.Tool) ClientOption {
	return func(o *clientConfig) {
		o.tools = tools
	}
}

func WithSampleRate(sr int) ClientOption {
	return func(o *clientConfig) {
		o.sampleRate = sr
	}
}

// WithLatency sets the audio chunking latency in milliseconds.
func WithLatency(latencyMS int) ClientOption {
	return func(o *clientConfig) {
		o.latencyMS = latencyMS
	}
}

// WithAudioOutput enables the staging buffer that collects decoded
// assistant audio for playback via Client.AudioOutput.
func WithAudioOutput() ClientOption {
	return func(o *clientConfig) {
		o.audioOutput = true
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() ClientOption {
	return WithLogger(slog.Default())
}

func WithDialTimeout(d time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.dialTimeout = d
	}
}

// WithReconnect tunes the backoff schedule for unexpected drops: delays of
// base, 2×base, 4×base, ... capped at max, for at most maxAttempts tries.
func WithReconnect(base, max time.Duration, maxAttempts int) ClientOption {
	return func(o *clientConfig) {
		o.reconnectBase = base
		o.reconnectMax = max
		o.reconnectMaxAttempts = maxAttempts
	}
}

// WithSubprotocolAuth carries the credential in the WebSocket subprotocol
// list instead of an Authorization header, for runtimes that cannot set
// handshake headers.
func WithSubprotocolAuth() ClientOption {
	return func(o *clientConfig) {
		o.subprotocolAuth = true
	}
}

// WithPeerTransport switches the carrier to a WebRTC peer connection.
func WithPeerTransport(p PeerOptions) ClientOption {
	return func(o *clientConfig) {
		o.peer = &p
	}
}

// WithTransportFactory installs a custom carrier, mainly for tests.
func WithTransportFactory(f TransportFactory) ClientOption {
	return func(o *clientConfig) {
		o.dial = f
	}
}

func WithOptions(opts ...ClientOption) ClientOption {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

// envConfig mirrors the option surface onto REALTIME_* variables.
type envConfig struct {
	Model             string        `env:"REALTIME_MODEL"`
	URL               string        `env:"REALTIME_URL"`
	APIKey            string        `env:"REALTIME_API_KEY"`
	Voice             string        `env:"REALTIME_VOICE"`
	Instructions      string        `env:"REALTIME_INSTRUCTIONS"`
	Temperature       float64       `env:"REALTIME_TEMPERATURE"`
	ReconnectBase     time.Duration `env:"REALTIME_RECONNECT_BASE"`
	ReconnectMax      time.Duration `env:"REALTIME_RECONNECT_MAX"`
	ReconnectAttempts int           `env:"REALTIME_RECONNECT_ATTEMPTS"`
}

// FromEnv overlays REALTIME_* environment variables onto the config. Unset
// variables leave the current values alone.
func FromEnv() ClientOption {
	return func(o *clientConfig) {
		var ec envConfig
		if err := env.Parse(&ec); err != nil {
			slog.Warn("bad REALTIME_* environment", slog.Any("err", err))
			return
		}
		if ec.Model != "" {
			o.model = ec.Model
		}
		if ec.URL != "" {
			o.baseURL = ec.URL
		}
		if ec.APIKey != "" {
			o.credential = StaticCredential(ec.APIKey)
		}
		if ec.Voice != "" {
			o.voice = ec.Voice
		}
		if ec.Instructions != "" {
			o.instructions = ec.Instructions
		}
		if ec.Temperature != 0 {
			o.temperature = ec.Temperature
		}
		if ec.ReconnectBase != 0 {
			o.reconnectBase = ec.ReconnectBase
		}
		if ec.ReconnectMax != 0 {
			o.reconnectMax = ec.ReconnectMax
		}
		if ec.ReconnectAttempts != 0 {
			o.reconnectMaxAttempts = ec.ReconnectAttempts
		}
	}
}

func withDefaults() ClientOption {
	return WithOptions(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBaseURL(defaultSocketURL),
		WithModel("gpt-4o-realtime-preview-2025-06-03"),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong),
		WithLanguage("en"),
		WithVoice("coral"),
		WithInstructions("You are a helpful voice assistant."),
		WithTemperature(0.7),
		WithSpeed(1.0),
		WithModalities(events.ModalityText, events.ModalityAudio),
		WithTurnDetection(events.ServerVAD(0.5, 300, 500)),
		WithSampleRate(24_000),
		WithLatency(200),
		WithDialTimeout(10*time.Second),
		WithReconnect(time.Second, 30*time.Second, 5),
	)
}
