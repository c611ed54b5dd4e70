// Package llm wraps the Gemini API behind a small completion interface
// with client-side pacing and a bounded per-call timeout.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ladlebot/ladle/internal/log"
)

// ErrEmptyCompletion indicates the model returned no usable text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Message roles understood by Complete.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn submitted to the model.
type Message struct {
	Role    string
	Content string
}

// Options are per-call sampling parameters.
type Options struct {
	Temperature float32
	MaxTokens   int32
}

// Completer produces a single completion for an ordered message list.
type Completer interface {
	Complete(ctx context.Context, msgs []Message, opts Options) (string, error)
}

// Client is the Gemini-backed Completer. A token-bucket limiter paces
// requests before they leave the process so a burst of channel
// activity cannot hammer the API.
type Client struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	tracer  trace.Tracer
	logger  log.Logger
}

// New creates a client for model. perSecond and burst configure the
// proactive pacing; timeout bounds each completion call.
func New(ctx context.Context, apiKey, model string, perSecond float64, burst int, timeout time.Duration, logger log.Logger) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{
		client:  c,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		timeout: timeout,
		tracer:  otel.Tracer("ladle/llm"),
		logger:  logger,
	}, nil
}

// Complete submits msgs and returns the completion text. System
// messages are folded into the system instruction; assistant turns map
// to the model role.
func (c *Client) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("model", c.model),
		attribute.Int("turns", len(msgs)),
	))
	defer span.End()

	var system []string
	var contents []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(opts.Temperature),
		MaxOutputTokens: opts.MaxTokens,
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyCompletion
	}

	c.logger.Debug("completion finished",
		"model", c.model,
		"turns", len(contents),
		"duration", time.Since(start))
	return text, nil
}

// CleanResponse normalizes a completion for delivery: a leading
// "botName:" prefix the model sometimes imitates is stripped, as are
// quotes wrapping the whole reply.
func CleanResponse(botName, text string) string {
	s := strings.TrimSpace(text)

	prefix := botName + ":"
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		s = strings.TrimSpace(s[len(prefix):])
	}

	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}
