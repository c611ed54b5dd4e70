// Package webextract fetches linked web pages and reduces them to short
// plain-text summaries suitable for inlining into a model prompt.
package webextract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/ladlebot/ladle/internal/log"
)

const (
	// maxSummaryLen bounds the extracted text before the ellipsis.
	maxSummaryLen = 497

	defaultTimeout = 10 * time.Second
)

var urlPattern = regexp.MustCompile(`https?://(?:[-\w.]|(?:%[\da-fA-F]{2}))+`)

// ExtractURLs returns up to max http(s) URLs found in text, in order of
// appearance. max <= 0 disables extraction.
func ExtractURLs(text string, max int) []string {
	if max <= 0 {
		return nil
	}
	matches := urlPattern.FindAllString(text, max)
	return matches
}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  log.Logger
}

// NewFetcher creates a fetcher. timeout bounds each page fetch; zero
// means the 10 second default.
func NewFetcher(timeout time.Duration, logger log.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// Summarize fetches rawURL and returns its readable text, collapsed to
// single spaces and truncated, wrapped in a "[URL content: ...]" tag.
// Non-HTML responses, fetch failures and empty extractions all return
// an empty string and a nil error; the caller caches the empty result.
func (f *Fetcher) Summarize(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Ladle/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("url fetch failed", "url", rawURL, "error", err)
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Debug("url fetch non-200", "url", rawURL, "status", resp.StatusCode)
		return "", nil
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		f.logger.Debug("url skipped, not html", "url", rawURL, "content_type", ct)
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		f.logger.Debug("url body read failed", "url", rawURL, "error", err)
		return "", nil
	}

	text := extractText(body, rawURL)
	if text == "" {
		return "", nil
	}
	return fmt.Sprintf("[URL content: %s]", truncate(text, maxSummaryLen)), nil
}

// extractText tries the readability extractor first and falls back to
// stripping markup wholesale when it finds no article body.
func extractText(html []byte, rawURL string) string {
	pageURL, _ := url.Parse(rawURL)

	article, err := readability.FromReader(strings.NewReader(string(html)), pageURL)
	if err == nil {
		if text := collapse(article.TextContent); text != "" {
			return text
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	return collapse(doc.Text())
}

// collapse reduces all whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n bytes plus an ellipsis, backing off to
// a rune boundary so the cut never splits a multibyte character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
