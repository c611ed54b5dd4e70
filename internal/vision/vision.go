// Package vision asks the analysis endpoint to describe an image
// attachment so the description can join the conversation context.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ladlebot/ladle/internal/log"
)

const defaultTimeout = 60 * time.Second

// maxAttachmentBytes caps how much of an attachment is downloaded.
const maxAttachmentBytes = 20 << 20

// Describer turns an attachment URL into a textual description.
type Describer interface {
	Describe(ctx context.Context, attachmentURL, filename string) (string, error)
}

// Client posts attachments to the analyze endpoint.
type Client struct {
	analyzeURL string
	http       *http.Client
	logger     log.Logger
}

// New creates a client for the analyze endpoint at analyzeURL.
func New(analyzeURL string, logger log.Logger) *Client {
	return &Client{
		analyzeURL: analyzeURL,
		http:       &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// Describe downloads the attachment and submits it as a multipart
// upload, returning the description text.
func (c *Client) Describe(ctx context.Context, attachmentURL, filename string) (string, error) {
	img, err := c.download(ctx, attachmentURL)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.analyzeURL, &buf)
	if err != nil {
		return "", fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("analyze image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("analyze image: status %d", resp.StatusCode)
	}

	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode analyze response: %w", err)
	}
	return body.Description, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build attachment request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download attachment: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	return data, nil
}
