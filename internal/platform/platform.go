// Package platform defines the narrow contracts the core needs from a
// chat platform. The discordgo adapter in internal/bot implements them;
// tests use in-memory fakes.
//
// Interfaces live here, with the consumers, so the queue, the context
// assembler and the job router stay free of any platform SDK import.
package platform

import "context"

// GeneratedImagePrefix starts every image-delivery message the bot
// sends. The context assembler uses it to keep those announcements out
// of the conversation window.
const GeneratedImagePrefix = "🎨"

// Message is a single channel message as the core sees it.
type Message struct {
	ID          string
	ChannelID   string
	AuthorID    string
	AuthorName  string // display name, not unique handle
	FromBot     bool   // authored by this bot
	Content     string
	Attachments []Attachment
}

// Attachment is a file attached to a message.
type Attachment struct {
	URL      string
	Filename string
}

// History is a channel handle supporting "fetch last N messages".
// Messages are returned newest first.
type History interface {
	Recent(ctx context.Context, limit int) ([]Message, error)
}

// Channel is a channel handle the bot can talk into.
type Channel interface {
	History
	Send(ctx context.Context, content string) error
	// Typing shows a typing indicator where the platform supports one.
	// Best effort; failures are ignored.
	Typing(ctx context.Context)
}

// Replier is the originating-request handle a job carries: who asked,
// where, and how to reach them after the initial response window closed.
type Replier interface {
	UserID() string
	DisplayName() string
	Mention() string
	GuildID() string // empty outside a guild (direct message)
	ChannelID() string

	// Ack sends a short private acknowledgement (for example "queued").
	Ack(ctx context.Context, content string) error
	// FollowupError reports a failure privately to the requester.
	FollowupError(ctx context.Context, content string) error
	// SendImage delivers a finished image publicly with its caption,
	// detail line, and the follow-up control row.
	SendImage(ctx context.Context, img Image) error
}

// Image is a finished image-generation result ready for delivery.
type Image struct {
	Filename string
	Data     []byte

	Caption     string // prompt / selected-terms text
	Details     string // seed, action, duration, queue line
	ControlsKey string // correlation key for the follow-up control row
}
