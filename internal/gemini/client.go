package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Romainl01/photobooth-backend/internal/config"
)

const defaultRetryAfterSeconds = 30

// Image is a generated image as returned by the provider.
type Image struct {
	Data string // base64 payload
	Mime string
}

// QuotaError signals the provider is rate limiting or out of quota. The
// request is retriable shortly after; no credit was consumed.
type QuotaError struct {
	RetryAfter int // seconds
	Detail     string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("provider at capacity (retry after %ds): %s", e.RetryAfter, e.Detail)
}

// RejectionError signals the provider refused or mangled this particular
// request: a safety block, a non-success finish reason, or a response with
// no image in it. Not retriable as-is; no credit was consumed.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("generation rejected: %s", e.Reason)
}

// UserMessage maps the provider's rejection reason to wording fit for the
// API response.
func (e *RejectionError) UserMessage() string {
	switch e.Reason {
	case "SAFETY", "IMAGE_SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return "The image was rejected by the content policy. Try a different photo. You were not charged."
	case "RECITATION":
		return "The image could not be generated from this photo. You were not charged."
	default:
		return "The provider returned an unusable result. Please try again. You were not charged."
	}
}

// Client calls the generative-image API. One model, one endpoint; the style
// prompt and the captured photo travel together in a single request.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:  cfg.GeminiAPIKey,
		baseURL: strings.TrimRight(cfg.GeminiBaseURL, "/"),
		model:   cfg.GeminiModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Stylize sends the photo plus the style instruction and returns the
// generated image. Failures come back as *QuotaError, *RejectionError, or a
// plain error for transport problems.
func (c *Client) Stylize(ctx context.Context, prompt, imageBase64, mimeType string) (*Image, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MimeType: mimeType, Data: imageBase64}},
			},
		}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A client-side deadline is indistinguishable from an overloaded
		// provider as far as the caller is concerned: retriable, unpaid.
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, &QuotaError{RetryAfter: defaultRetryAfterSeconds, Detail: "request timed out"}
		}
		return nil, fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generate response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, c.classifyHTTPError(resp, rawBody)
	}

	var parsed generateResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode generate response: %w (body=%s)", err, truncateBody(rawBody))
	}

	if parsed.PromptFeedback.BlockReason != "" {
		if c.log != nil {
			c.log.Warn("prompt blocked", "reason", parsed.PromptFeedback.BlockReason)
		}
		return nil, &RejectionError{Reason: parsed.PromptFeedback.BlockReason}
	}
	if len(parsed.Candidates) == 0 {
		return nil, &RejectionError{Reason: "NO_CANDIDATES"}
	}

	candidate := parsed.Candidates[0]
	if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
		if c.log != nil {
			c.log.Warn("generation did not finish cleanly", "finish_reason", candidate.FinishReason)
		}
		return nil, &RejectionError{Reason: candidate.FinishReason}
	}

	for _, p := range candidate.Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return &Image{Data: p.InlineData.Data, Mime: p.InlineData.MimeType}, nil
		}
	}
	return nil, &RejectionError{Reason: "NO_IMAGE"}
}

func (c *Client) classifyHTTPError(resp *http.Response, rawBody []byte) error {
	var parsed apiError
	_ = json.Unmarshal(rawBody, &parsed)

	if resp.StatusCode == http.StatusTooManyRequests ||
		parsed.Error.Status == "RESOURCE_EXHAUSTED" ||
		strings.Contains(strings.ToLower(parsed.Error.Message), "quota") {
		retryAfter := defaultRetryAfterSeconds
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				retryAfter = secs
			}
		}
		if c.log != nil {
			c.log.Warn("provider at capacity", "status", resp.StatusCode, "detail", parsed.Error.Message)
		}
		return &QuotaError{RetryAfter: retryAfter, Detail: parsed.Error.Message}
	}

	if c.log != nil {
		c.log.Error("generate call failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
	}
	return fmt.Errorf("provider error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
