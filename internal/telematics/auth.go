package telematics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// tokenScope is the scope set the charging-history endpoint requires.
const tokenScope = "openid offline_access vehicle_device_data vehicle_cmds vehicle_charging_cmds"

// TokenSource yields a valid bearer token for the telematics API. The
// refresh-token exchange happens out of band of the pipeline: callers only
// see a token or ErrAuthExpired.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token. Useful for tests.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) { return string(s), nil }

// RefreshTokenSource exchanges a long-lived refresh token for short-lived
// access tokens and caches them until shortly before expiry.
type RefreshTokenSource struct {
	authURL      string
	clientID     string
	refreshToken string
	http         *http.Client
	now          func() time.Time

	accessToken string
	expiry      time.Time
}

// NewRefreshTokenSource creates a TokenSource backed by the OAuth
// refresh-token grant at authURL.
func NewRefreshTokenSource(authURL, clientID, refreshToken string) *RefreshTokenSource {
	return &RefreshTokenSource{
		authURL:      strings.TrimRight(authURL, "/"),
		clientID:     clientID,
		refreshToken: refreshToken,
		http:         &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (s *RefreshTokenSource) Token(ctx context.Context) (string, error) {
	// Refresh a minute early so a token never expires mid-request.
	if s.accessToken != "" && s.now().Before(s.expiry.Add(-time.Minute)) {
		return s.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {s.clientID},
		"refresh_token": {s.refreshToken},
		"scope":         {tokenScope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: refresh token rejected (status %d)", ErrAuthExpired, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: token endpoint returned status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token response carried no access token", ErrAuthExpired)
	}

	s.accessToken = tok.AccessToken
	s.expiry = s.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	// Some responses rotate the refresh token.
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	return s.accessToken, nil
}
