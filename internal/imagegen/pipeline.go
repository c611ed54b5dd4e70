package imagegen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ladlebot/ladle/internal/llm"
	"github.com/ladlebot/ladle/internal/log"
)

// Dimension presets. Square is the slash-command default; wide and tall
// are the fixed targets of their follow-up actions.
const (
	SquareWidth  = 1024
	SquareHeight = 1024
	WideWidth    = 1920
	WideHeight   = 1024
	TallWidth    = 1024
	TallHeight   = 1920
)

// Sampling parameters for the fancy-rewrite call.
const (
	fancyTemperature = 0.7
	fancyMaxTokens   = 150
)

// Params is one pipeline invocation.
type Params struct {
	Prompt      string
	Width       int
	Height      int
	Seed        int64 // negative means assign a fresh one
	ActionLabel string
	QueueDepth  int
	// PreDuration is time already spent before the image call, for
	// example on a prompt rewrite. It is folded into Result.Duration.
	PreDuration time.Duration
}

// Result is a finished generation ready for delivery.
type Result struct {
	Image         []byte
	Filename      string
	Prompt        string
	Width         int
	Height        int
	Seed          int64
	ActionLabel   string
	Duration      time.Duration
	QueuePosition int
}

// Pipeline runs generations against the image server, with language-
// model prompt rewriting for the fancy and random paths.
type Pipeline struct {
	client    *Client
	completer llm.Completer
	fancyInst string
	tracer    trace.Tracer
	logger    log.Logger
}

// NewPipeline wires the pipeline. fancyInstruction is the system
// instruction used to rewrite prompts for the fancy action.
func NewPipeline(client *Client, completer llm.Completer, fancyInstruction string, logger log.Logger) *Pipeline {
	return &Pipeline{
		client:    client,
		completer: completer,
		fancyInst: fancyInstruction,
		tracer:    otel.Tracer("ladle/imagegen"),
		logger:    logger,
	}
}

// Generate runs one image call and assembles the result bundle. The
// reported duration is the call time plus params.PreDuration.
func (p *Pipeline) Generate(ctx context.Context, params Params) (*Result, error) {
	seed := params.Seed
	if seed < 0 {
		seed = NewSeed()
	}

	ctx, span := p.tracer.Start(ctx, "imagegen.generate", trace.WithAttributes(
		attribute.Int("width", params.Width),
		attribute.Int("height", params.Height),
		attribute.Int64("seed", seed),
		attribute.String("action", params.ActionLabel),
	))
	defer span.End()

	start := time.Now()
	img, err := p.client.Generate(ctx, Request{
		Prompt: params.Prompt,
		Width:  params.Width,
		Height: params.Height,
		Seed:   seed,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	duration := params.PreDuration + time.Since(start)
	p.logger.Info("image generated",
		"seed", seed,
		"bytes", len(img),
		"duration", duration.Round(time.Millisecond))

	return &Result{
		Image:         img,
		Filename:      Filename(params.Prompt),
		Prompt:        params.Prompt,
		Width:         params.Width,
		Height:        params.Height,
		Seed:          seed,
		ActionLabel:   params.ActionLabel,
		Duration:      duration,
		QueuePosition: params.QueueDepth,
	}, nil
}

// Fancy rewrites prompt with one language-model call and reports how
// long the rewrite took, so the caller can fold it into PreDuration.
// On rewrite failure the original prompt is returned unchanged.
func (p *Pipeline) Fancy(ctx context.Context, prompt string) (string, time.Duration) {
	start := time.Now()
	out, err := p.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: p.fancyInst},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Options{Temperature: fancyTemperature, MaxTokens: fancyMaxTokens})
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Warn("fancy rewrite failed, using original prompt", "error", err)
		return prompt, elapsed
	}
	out = strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `"`))
	if out == "" {
		return prompt, elapsed
	}
	return out, elapsed
}

// Healthy reports whether the image server answers its health endpoint.
func (p *Pipeline) Healthy(ctx context.Context) bool {
	return p.client.Healthy(ctx)
}

// NewSeed returns a fresh random seed in the 32-bit range the image
// server accepts.
func NewSeed() int64 {
	return int64(rand.Uint32())
}

// RoundDimension rounds n up to the next multiple of 64, with a floor
// of 64. User-supplied edit dimensions pass through here.
func RoundDimension(n int) int {
	if n <= 64 {
		return 64
	}
	return (n + 63) / 64 * 64
}

// Filename builds the delivery filename: a six-digit random prefix and
// the sanitized leading portion of the prompt.
func Filename(prompt string) string {
	return fmt.Sprintf("%06d_%s.png", 100000+rand.IntN(900000), sanitize(prompt, 40))
}

// sanitize lowercases s, replaces runs of non-alphanumerics with a
// single underscore, and cuts the result to max bytes.
func sanitize(s string, max int) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > max {
		out = strings.Trim(out[:max], "_")
	}
	if out == "" {
		out = "image"
	}
	return out
}
