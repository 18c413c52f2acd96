package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExchangeSDP(t *testing.T) {
	const answer = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/sdp", r.Header.Get("Content-Type"))
		require.Equal(t, "Bearer tok_abc", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "v=0")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(answer))
	}))
	defer srv.Close()

	got, err := exchangeSDP(context.Background(), PeerConfig{
		URL:   srv.URL,
		Token: "tok_abc",
	}, "v=0\r\no=offer\r\n")
	require.NoError(t, err)
	require.Equal(t, answer, got)
}

func TestExchangeSDPRejectedCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"invalid_api_key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := exchangeSDP(context.Background(), PeerConfig{
		URL:   srv.URL,
		Token: "bad",
	}, "v=0\r\n")
	require.Error(t, err)
	require.ErrorContains(t, err, "401")
}
