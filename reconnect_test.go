package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/voicewire/realtime-go/transport"
)

func TestBackoffGrowth(t *testing.T) {
	cfg := &clientConfig{
		reconnectBase: time.Second,
		reconnectMax:  30 * time.Second,
	}
	b := newReconnectBackoff(cfg)

	require.Equal(t, 1*time.Second, b.NextBackOff())
	require.Equal(t, 2*time.Second, b.NextBackOff())
	require.Equal(t, 4*time.Second, b.NextBackOff())
	require.Equal(t, 8*time.Second, b.NextBackOff())
}

func TestBackoffCappedAtMax(t *testing.T) {
	cfg := &clientConfig{
		reconnectBase: time.Second,
		reconnectMax:  2 * time.Second,
	}
	b := newReconnectBackoff(cfg)

	require.Equal(t, 1*time.Second, b.NextBackOff())
	require.Equal(t, 2*time.Second, b.NextBackOff())
	require.Equal(t, 2*time.Second, b.NextBackOff())
}

func TestBackoffResetsAfterSuccess(t *testing.T) {
	cfg := &clientConfig{
		reconnectBase: time.Second,
		reconnectMax:  30 * time.Second,
	}
	b := newReconnectBackoff(cfg)

	b.NextBackOff()
	b.NextBackOff()
	b.Reset()

	require.Equal(t, 1*time.Second, b.NextBackOff())
}

func TestAuthErrorCodes(t *testing.T) {
	require.True(t, isAuthErrorCode("invalid_api_key"))
	require.True(t, isAuthErrorCode("expired_api_key"))
	require.False(t, isAuthErrorCode("invalid_item"))
	require.False(t, isAuthErrorCode(""))
}

func TestAuthCloseCodes(t *testing.T) {
	require.True(t, isAuthCloseCode(transport.ClosePolicy))
	require.True(t, isAuthCloseCode(4001))
	require.False(t, isAuthCloseCode(transport.CloseNormal))
	require.False(t, isAuthCloseCode(transport.CloseAbnormal))
}
