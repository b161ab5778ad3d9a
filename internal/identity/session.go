package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Session is a bearer credential pair as issued by the auth backend.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// RefreshSession exchanges the refresh token for a fresh credential pair.
// The call is bounded by the configured refresh ceiling regardless of the
// parent context.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return Session{}, fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/token?grant_type=refresh_token", bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Session{}, fmt.Errorf("refresh failed: status=%d", resp.StatusCode)
	}

	var refreshed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return Session{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if refreshed.AccessToken == "" {
		return Session{}, fmt.Errorf("refresh returned empty access token")
	}
	return Session{AccessToken: refreshed.AccessToken, RefreshToken: refreshed.RefreshToken}, nil
}

// EnsureFresh refreshes the session on a best-effort basis. On failure or
// timeout the original session is returned unchanged: the request proceeds
// and the gateway's own authentication step is the authority.
func (c *Client) EnsureFresh(ctx context.Context, session Session) Session {
	if session.RefreshToken == "" {
		return session
	}
	refreshed, err := c.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		if c.log != nil {
			c.log.Warn("session refresh failed, proceeding with current token", "err", err)
		}
		return session
	}
	return refreshed
}
