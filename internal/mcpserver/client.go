package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to a FairShare API.
type Config struct {
	APIURL        string // Base URL, e.g. "http://localhost:8080"
	DefaultSender string // Viewer used by send_points when no sender is given
}

// FairShareClient is a pure HTTP client for the FairShare API.
type FairShareClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewFairShareClient creates a new client for the FairShare API.
func NewFairShareClient(cfg Config) *FairShareClient {
	return &FairShareClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request and returns the response body.
func (c *FairShareClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// SendPoints submits a transfer. A flagged transfer is not an error.
func (c *FairShareClient) SendPoints(ctx context.Context, sender, recipient string, points int64) (json.RawMessage, error) {
	body := map[string]any{
		"sender":    sender,
		"recipient": recipient,
		"points":    points,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/transfers", nil, body)
}

// GetThresholds returns the viewer's current limits.
func (c *FairShareClient) GetThresholds(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/viewers/"+url.PathEscape(userID)+"/thresholds", nil, nil)
}

// GetProfile returns the viewer's trust profile with thresholds.
func (c *FairShareClient) GetProfile(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/viewers/"+url.PathEscape(userID)+"/profile", nil, nil)
}

// GetSummary returns ledger totals.
func (c *FairShareClient) GetSummary(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/transfers/summary", nil, nil)
}

// GetFlow returns the fund-flow report for a trailing window. hours <= 0
// uses the server default.
func (c *FairShareClient) GetFlow(ctx context.Context, hours int) (json.RawMessage, error) {
	q := url.Values{}
	if hours > 0 {
		q.Set("hours", strconv.Itoa(hours))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/transfers/flow", q, nil)
}

// GetLeaderboard returns creators ranked by engagement.
func (c *FairShareClient) GetLeaderboard(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/creators/leaderboard", q, nil)
}
