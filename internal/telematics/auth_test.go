package telematics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokenSource_ExchangesAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "ownerapi", r.Form.Get("client_id"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))

		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: "access-1",
			ExpiresIn:   3600,
		})
	}))
	defer srv.Close()

	src := NewRefreshTokenSource(srv.URL, "ownerapi", "refresh-1")

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)

	// Second call within the expiry window hits the cache.
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefreshTokenSource_RefreshesNearExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken:  "access-" + string(rune('0'+n)),
			RefreshToken: "refresh-rotated",
			ExpiresIn:    30,
		})
	}))
	defer srv.Close()

	src := NewRefreshTokenSource(srv.URL, "ownerapi", "refresh-1")
	now := time.Date(2025, 8, 14, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	_, err := src.Token(context.Background())
	require.NoError(t, err)

	// 30s lifetime minus the one-minute leeway means the cached token is
	// already considered stale on the next call.
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "refresh-rotated", src.refreshToken, "rotated refresh token must be adopted")
}

func TestRefreshTokenSource_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewRefreshTokenSource(srv.URL, "ownerapi", "revoked")
	_, err := src.Token(context.Background())
	assert.ErrorIs(t, err, ErrAuthExpired)
}

func TestRefreshTokenSource_Unavailable(t *testing.T) {
	src := NewRefreshTokenSource("http://127.0.0.1:1", "ownerapi", "refresh-1")
	_, err := src.Token(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}
