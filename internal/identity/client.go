package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Romainl01/photobooth-backend/internal/config"
)

// ErrUnauthenticated means the bearer token could not be resolved to a user.
var ErrUnauthenticated = errors.New("identity: token not resolvable")

// Client talks to the auth backend that issued the bearer tokens. Resolving
// a token is the only authentication step the gateway trusts.
type Client struct {
	baseURL        string
	apiKey         string
	refreshTimeout time.Duration
	httpClient     *http.Client
	log            *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	refreshTimeout := cfg.SessionRefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = 10 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.IdentityBaseURL, "/"),
		apiKey:         cfg.IdentityAPIKey,
		refreshTimeout: refreshTimeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// ResolveUser exchanges an access token for the stable user id. Any failure
// to resolve maps to ErrUnauthenticated; the caller has no fallback.
func (c *Client) ResolveUser(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read identity response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if c.log != nil {
			c.log.Debug("identity rejected token", "status", resp.StatusCode)
		}
		return "", fmt.Errorf("%w: status=%d", ErrUnauthenticated, resp.StatusCode)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rawBody, &user); err != nil {
		return "", fmt.Errorf("decode identity response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrUnauthenticated)
	}
	return user.ID, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
