package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

// PeerConfig configures the WebRTC carrier. The offer/answer exchange runs
// over plain HTTP, so the credential travels in the Authorization header.
type PeerConfig struct {
	// URL is the HTTP SDP-negotiation endpoint.
	URL   string
	Token string

	HTTPClient *http.Client
	ICEServers []webrtc.ICEServer

	// LocalTrack is the microphone track offered to upstream. Optional; a
	// receive-only transceiver is negotiated when absent.
	LocalTrack webrtc.TrackLocal

	// OnRemoteTrack surfaces upstream audio as a playable track handle.
	OnRemoteTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

	Logger *slog.Logger
}

// Peer carries JSON frames over a reliable ordered data channel and audio
// over negotiated media tracks.
type Peer struct {
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	done    chan struct{}
	handler Handler
	logger  *slog.Logger

	established atomic.Bool
	finishOnce  sync.Once
}

// DialPeer negotiates a peer connection: local offer with data channel and
// audio, HTTP exchange for the answer, then waits for the channel to open.
func DialPeer(ctx context.Context, cfg PeerConfig, h Handler) (*Peer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("url", cfg.URL))

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("peer connection: %w", err)
	}

	p := &Peer{
		pc:      pc,
		done:    make(chan struct{}),
		handler: h,
		logger:  logger,
	}

	if cfg.LocalTrack != nil {
		if _, err := pc.AddTrack(cfg.LocalTrack); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add local track: %w", err)
		}
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add audio transceiver: %w", err)
		}
	}

	if cfg.OnRemoteTrack != nil {
		pc.OnTrack(cfg.OnRemoteTrack)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", slog.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateFailed:
			p.finish(CloseAbnormal, "peer connection failed")
		case webrtc.PeerConnectionStateClosed:
			p.finish(CloseNormal, "peer connection closed")
		}
	})

	ordered := true
	dc, err := pc.CreateDataChannel("events", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("data channel: %w", err)
	}
	p.dc = dc

	opened := make(chan struct{})
	dc.OnOpen(func() {
		close(opened)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.handler.OnFrame != nil {
			p.handler.OnFrame(msg.Data)
		}
	})
	dc.OnClose(func() {
		p.finish(CloseAbnormal, "data channel closed")
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}

	// Non-trickle: gather all candidates before shipping the offer.
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = pc.Close()
		return nil, fmt.Errorf("ice gathering: %w", ctx.Err())
	}

	answer, err := exchangeSDP(ctx, cfg, pc.LocalDescription().SDP)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	select {
	case <-opened:
	case <-p.done:
		_ = pc.Close()
		return nil, fmt.Errorf("peer connection closed before data channel opened")
	case <-ctx.Done():
		_ = pc.Close()
		return nil, fmt.Errorf("data channel open: %w", ctx.Err())
	}

	p.established.Store(true)
	logger.Debug("data channel open", slog.String("label", dc.Label()))

	return p, nil
}

// exchangeSDP POSTs the offer to the negotiation endpoint and returns the
// answer SDP.
func exchangeSDP(ctx context.Context, cfg PeerConfig, offerSDP string) (string, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("sdp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+cfg.Token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sdp exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("sdp answer read: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("sdp exchange: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return string(body), nil
}

// Send writes one JSON frame to the data channel. Fails loudly unless the
// channel is in the open state.
func (p *Peer) Send(data []byte) error {
	if p.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotOpen
	}
	return p.dc.SendText(string(data))
}

// Close tears down the peer connection. The data channel and media tracks
// go down with it.
func (p *Peer) Close(ctx context.Context) error {
	p.finish(CloseNormal, "local close")
	return nil
}

func (p *Peer) finish(code int, reason string) {
	p.finishOnce.Do(func() {
		close(p.done)
		// Close on a separate goroutine: finish may run inside a pion
		// callback, where a synchronous Close can deadlock.
		go func() { _ = p.pc.Close() }()
		// Closures during a failed dial are reported via the dial error,
		// not the handler.
		if p.established.Load() && p.handler.OnClose != nil {
			p.handler.OnClose(code, reason)
		}
	})
}
