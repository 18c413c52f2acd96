package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/voicewire/realtime-go/transport"
)

// authErrorCodes are upstream error codes that mean the credential itself
// is bad. These are never retried.
var authErrorCodes = map[string]bool{
	"invalid_api_key":        true,
	"missing_api_key":        true,
	"expired_api_key":        true,
	"invalid_authentication": true,
	"invalid_client_secret":  true,
}

func isAuthErrorCode(code string) bool {
	return authErrorCodes[code]
}

// isAuthCloseCode classifies transport close codes that signal rejected
// credentials (policy violation, or the private-range code some gateways
// use for auth).
func isAuthCloseCode(code int) bool {
	return code == transport.ClosePolicy || code == 4001
}

// newReconnectBackoff builds the reconnect delay policy: base × 2^(n−1),
// capped at the configured maximum, no jitter so the schedule is exact.
func newReconnectBackoff(cfg *clientConfig) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.reconnectBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         cfg.reconnectMax,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// handleClose is the transport's OnClose callback. It decides between a
// clean shutdown, an auth teardown, and the reconnection path.
func (c *Client) handleClose(code int, reason string) {
	c.mu.Lock()

	// Auth teardown already nil-ed the carrier and reported; the close
	// acknowledgement that follows is noise.
	if c.conn == nil && c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}

	c.conn = nil
	closing := c.closing

	switch {
	case closing, code == transport.CloseNormal, code == transport.CloseGoingAway:
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Info("disconnected", slog.Int("code", code), slog.String("reason", reason))
		c.emitter.emit(Event{Type: TypeDisconnected})

	case isAuthCloseCode(code):
		c.state = StateDisconnected
		c.mu.Unlock()
		err := fmt.Errorf("realtime: closed by upstream: %d %s", code, reason)
		c.logger.Error("authentication failed", slog.Any("err", err))
		c.emitter.emit(Event{Type: TypeAuthenticationError, Err: err})
		c.emitter.emit(Event{Type: TypeDisconnected})

	default:
		c.state = StateReconnecting
		c.logger.Warn("connection lost, reconnecting",
			slog.Int("code", code), slog.String("reason", reason))
		exhausted := c.scheduleRetryLocked()
		c.mu.Unlock()
		if exhausted {
			c.emitTerminalFailure()
		}
	}
}

// scheduleRetryLocked arms the next reconnect timer, or reports that the
// attempt budget is spent. Caller holds c.mu and, on exhaustion, emits the
// terminal events after releasing it so delivery order stays exact.
func (c *Client) scheduleRetryLocked() (exhausted bool) {
	if c.closing {
		c.state = StateDisconnected
		return false
	}

	c.attempt++
	if c.attempt > c.config.reconnectMaxAttempts {
		c.state = StateDisconnected
		c.attempt = 0
		c.backoff.Reset()
		c.logger.Error("giving up on reconnect",
			slog.Int("max_attempts", c.config.reconnectMaxAttempts))
		return true
	}

	delay := c.backoff.NextBackOff()
	c.logger.Info("reconnect scheduled",
		slog.Int("attempt", c.attempt),
		slog.Duration("delay", delay))
	c.retryTimer = time.AfterFunc(delay, c.redial)
	return false
}

func (c *Client) emitTerminalFailure() {
	c.emitter.emit(Event{Type: TypeError, Err: ErrReconnectExhausted})
	c.emitter.emit(Event{Type: TypeDisconnected})
}

// redial runs on the reconnect timer. A deliberate Disconnect in the
// meantime wins; the timer is stopped there, and this re-checks state in
// case the race was lost.
func (c *Client) redial() {
	c.mu.Lock()
	if c.closing || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	attempt := c.attempt
	c.retryTimer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.dialTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.Warn("reconnect attempt failed",
			slog.Int("attempt", attempt), slog.Any("err", err))
		c.mu.Lock()
		if c.closing || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		exhausted := c.scheduleRetryLocked()
		c.mu.Unlock()
		if exhausted {
			c.emitTerminalFailure()
		}
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = conn.Close(closeCtx)
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.attempt = 0
	c.backoff.Reset()
	c.mu.Unlock()

	c.logger.Info("reconnected", slog.Int("attempts_used", attempt))
	c.emitter.emit(Event{Type: TypeConnected})
}
