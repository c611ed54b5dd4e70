package queue

import (
	"time"

	"github.com/ladlebot/ladle/internal/platform"
)

// ButtonAction identifies a follow-up action on a delivered image.
type ButtonAction string

const (
	ActionRandom ButtonAction = "random"
	ActionRemix  ButtonAction = "remix"
	ActionFancy  ButtonAction = "fancy"
	ActionWide   ButtonAction = "wide"
	ActionTall   ButtonAction = "tall"
	ActionEdit   ButtonAction = "edit"
)

// Job is a unit of work for the image worker. The two concrete kinds
// are GenerateJob and ButtonJob; the unexported method seals the set.
type Job interface {
	// Requester is the handle used for acknowledgement and delivery.
	Requester() platform.Replier
	// EnqueuedAt is when the job entered the queue.
	EnqueuedAt() time.Time

	job()
}

// base carries the fields every job kind shares.
type base struct {
	Replier platform.Replier
	Queued  time.Time
}

func (b base) Requester() platform.Replier { return b.Replier }
func (b base) EnqueuedAt() time.Time       { return b.Queued }

// GenerateJob is a fresh generation request from a slash command.
// A negative Seed means the dispatcher assigns one.
type GenerateJob struct {
	base

	Prompt string
	Width  int
	Height int
	Seed   int64
}

func (GenerateJob) job() {}

// ButtonJob reruns or transforms a previously delivered image.
type ButtonJob struct {
	base

	Action ButtonAction

	// Prompt is the original prompt, or the edited prompt for ActionEdit.
	Prompt string
	Width  int
	Height int
	Seed   int64
}

func (ButtonJob) job() {}

// NewGenerateJob builds a generation job stamped with the current time.
func NewGenerateJob(r platform.Replier, prompt string, width, height int, seed int64) *GenerateJob {
	return &GenerateJob{
		base:   base{Replier: r, Queued: time.Now()},
		Prompt: prompt,
		Width:  width,
		Height: height,
		Seed:   seed,
	}
}

// NewButtonJob builds a follow-up job stamped with the current time.
func NewButtonJob(r platform.Replier, action ButtonAction, prompt string, width, height int, seed int64) *ButtonJob {
	return &ButtonJob{
		base:   base{Replier: r, Queued: time.Now()},
		Action: action,
		Prompt: prompt,
		Width:  width,
		Height: height,
		Seed:   seed,
	}
}
