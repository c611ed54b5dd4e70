// Package imagegen talks to the flux image server and wraps it in the
// generation pipeline the worker dispatches into.
package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ladlebot/ladle/internal/log"
)

// Fixed sampling parameters for every generation request.
const (
	steps         = 4
	guidanceScale = 3.5

	healthTimeout = 5 * time.Second
)

// Request is one generation call to the image server.
type Request struct {
	Prompt string
	Width  int
	Height int
	Seed   int64
}

// Client is the HTTP client for the image server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  log.Logger
}

// NewClient creates a client for the server at baseURL. timeout bounds
// each generation call.
func NewClient(baseURL string, timeout time.Duration, logger log.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Generate submits req and returns the raw image bytes. Non-200
// responses become a ServiceError; transport failures map to
// ErrTimeout or ErrUnreachable. No retries.
func (c *Client) Generate(ctx context.Context, req Request) ([]byte, error) {
	form := url.Values{
		"prompt":         {req.Prompt},
		"steps":          {strconv.Itoa(steps)},
		"guidance_scale": {strconv.FormatFloat(guidanceScale, 'f', -1, 64)},
		"width":          {strconv.Itoa(req.Width)},
		"height":         {strconv.Itoa(req.Height)},
		"seed":           {strconv.FormatInt(req.Seed, 10)},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/flux", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build flux request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &ServiceError{Status: resp.StatusCode}
	}

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}
	return img, nil
}

// Healthy calls GET /health and reports whether the server answered
// {"status": "ok"} within the health timeout.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "ok"
}
