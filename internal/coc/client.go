// Package coc is the client for the backend service that proxies the Clash of
// Clans API. The backend resolves the configured clan, so the bot only asks for
// the clan, a player by tag, or the clan's current war.
//
// Requests are rate limited with a token bucket limiter. Every failure is
// either ErrUnreachable (transport) or a *StatusError (non-2xx response).
package coc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnreachable is wrapped by every error caused by a transport failure.
var ErrUnreachable = errors.New("backend unreachable")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s returned %d: %s", e.Path, e.Code, e.Body)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a
// *StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Client is the HTTP client for the backend service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a backend client with rate limiting.
func NewClient(baseURL string, timeout time.Duration, requestsPerMinute int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Limit(rps), max(requestsPerMinute/10, 1)),
		logger:     logger,
	}
}

// Clan returns the configured clan.
func (c *Client) Clan(ctx context.Context) (*Clan, error) {
	var clan Clan
	if err := c.get(ctx, "/clan", &clan); err != nil {
		return nil, err
	}
	return &clan, nil
}

// Player looks up a player by tag. The tag is normalized before the request.
func (c *Client) Player(ctx context.Context, tag string) (*Player, error) {
	normalized := NormalizeTag(tag)
	if normalized == "" {
		return nil, &StatusError{Path: "/player", Code: http.StatusBadRequest, Body: "empty player tag"}
	}
	var player Player
	if err := c.get(ctx, "/player/"+url.PathEscape(normalized), &player); err != nil {
		return nil, err
	}
	return &player, nil
}

// War returns the current war snapshot of the configured clan.
func (c *Client) War(ctx context.Context) (*War, error) {
	var war War
	if err := c.get(ctx, "/war", &war); err != nil {
		return nil, err
	}
	return &war, nil
}

// get performs a rate-limited GET request and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrUnreachable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUnreachable, path, err)
	}

	c.logger.Debug("backend request", "path", path, "status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Path: path, Code: resp.StatusCode, Body: truncate(body, 200)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
