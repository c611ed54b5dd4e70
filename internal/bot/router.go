package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/ladlebot/ladle/internal/imagegen"
	"github.com/ladlebot/ladle/internal/platform"
	"github.com/ladlebot/ladle/internal/queue"
	"github.com/ladlebot/ladle/internal/stats"
)

// Dispatch executes one dequeued job end to end: prompt preparation,
// the image call, delivery, and user-facing error reporting. It
// implements queue.Dispatcher.
func (b *Bot) Dispatch(ctx context.Context, job queue.Job) error {
	switch j := job.(type) {
	case *queue.GenerateJob:
		return b.runGeneration(ctx, j.Requester(), imagegen.Params{
			Prompt:     j.Prompt,
			Width:      j.Width,
			Height:     j.Height,
			Seed:       j.Seed,
			QueueDepth: b.queue.Size(),
		})
	case *queue.ButtonJob:
		return b.runButton(ctx, j)
	default:
		return fmt.Errorf("unknown job type %T", job)
	}
}

func (b *Bot) runButton(ctx context.Context, j *queue.ButtonJob) error {
	params := imagegen.Params{
		Prompt:      j.Prompt,
		Width:       j.Width,
		Height:      j.Height,
		Seed:        j.Seed,
		ActionLabel: string(j.Action),
		QueueDepth:  b.queue.Size(),
	}

	switch j.Action {
	case queue.ActionFancy:
		rewritten, elapsed := b.pipeline.Fancy(ctx, j.Prompt)
		params.Prompt = rewritten
		params.PreDuration = elapsed
	case queue.ActionRandom:
		spec := b.pipeline.Random(ctx, b.terms, b.cfg.RandomPrompt)
		params.Prompt = spec.Prompt
		params.Width = spec.Width
		params.Height = spec.Height
		params.PreDuration = spec.PreDuration
	}

	return b.runGeneration(ctx, j.Requester(), params)
}

func (b *Bot) runGeneration(ctx context.Context, r platform.Replier, params imagegen.Params) error {
	res, err := b.pipeline.Generate(ctx, params)
	if err != nil {
		if ferr := r.FollowupError(ctx, generationErrorMessage(err)); ferr != nil {
			b.logger.Warn("error followup failed", "error", ferr)
		}
		return err
	}

	key := b.controls.register(controlState{
		Prompt: res.Prompt,
		Width:  res.Width,
		Height: res.Height,
		Seed:   res.Seed,
	})

	img := platform.Image{
		Filename:    res.Filename,
		Data:        res.Image,
		Caption:     fmt.Sprintf("%s (requested by %s)", res.Prompt, r.DisplayName()),
		Details:     resultDetails(res),
		ControlsKey: key,
	}
	if err := r.SendImage(ctx, img); err != nil {
		return err
	}

	if err := b.stats.Increment(r.UserID(), r.DisplayName(), stats.StatImagesGenerated, r.GuildID()); err != nil {
		b.logger.Warn("image stat failed", "error", err)
	}
	return nil
}

func resultDetails(res *imagegen.Result) string {
	details := fmt.Sprintf("🌱 %d · 📐 %dx%d · ⏱️ %.1fs",
		res.Seed, res.Width, res.Height, res.Duration.Seconds())
	if res.ActionLabel != "" {
		details += " · 🔄 " + res.ActionLabel
	}
	if res.QueuePosition > 0 {
		details += fmt.Sprintf(" · 📋 %d waiting", res.QueuePosition)
	}
	return details
}

// generationErrorMessage maps pipeline errors to what the requester
// sees. Nothing is retried; the user re-triggers if they want.
func generationErrorMessage(err error) string {
	var se *imagegen.ServiceError
	switch {
	case errors.As(err, &se):
		return fmt.Sprintf("The image server answered with status %d. Try again in a bit.", se.Status)
	case errors.Is(err, imagegen.ErrTimeout):
		return "The image request timed out and was dropped."
	case errors.Is(err, imagegen.ErrUnreachable):
		return "The image server is unreachable right now."
	default:
		return "Image generation failed unexpectedly."
	}
}
