package bot

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/ladlebot/ladle/internal/platform"
)

// channelHandle adapts a Discord channel to platform.Channel.
type channelHandle struct {
	session   *discordgo.Session
	channelID string
	botID     string
}

func (c *channelHandle) Recent(_ context.Context, limit int) ([]platform.Message, error) {
	msgs, err := c.session.ChannelMessages(c.channelID, limit, "", "", "")
	if err != nil {
		return nil, fmt.Errorf("fetch channel messages: %w", err)
	}
	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Author == nil {
			continue
		}
		pm := platform.Message{
			ID:         m.ID,
			ChannelID:  m.ChannelID,
			AuthorID:   m.Author.ID,
			AuthorName: displayName(m.Author, m.Member),
			FromBot:    m.Author.ID == c.botID,
			Content:    m.Content,
		}
		for _, att := range m.Attachments {
			pm.Attachments = append(pm.Attachments, platform.Attachment{
				URL:      att.URL,
				Filename: att.Filename,
			})
		}
		out = append(out, pm)
	}
	return out, nil
}

func (c *channelHandle) Send(_ context.Context, content string) error {
	_, err := c.session.ChannelMessageSend(c.channelID, content)
	return err
}

func (c *channelHandle) Typing(context.Context) {
	_ = c.session.ChannelTyping(c.channelID)
}

// interactionReplier adapts a deferred interaction to platform.Replier.
// It outlives the 3-second initial response window via followups.
type interactionReplier struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
	controls    *controlRegistry

	userID      string
	displayName string
	guildID     string
	channelID   string
}

func newInteractionReplier(b *Bot, i *discordgo.InteractionCreate) *interactionReplier {
	user := i.User
	if user == nil && i.Member != nil {
		user = i.Member.User
	}
	r := &interactionReplier{
		session:     b.session,
		interaction: i.Interaction,
		controls:    b.controls,
		guildID:     i.GuildID,
		channelID:   i.ChannelID,
	}
	if user != nil {
		r.userID = user.ID
		r.displayName = displayName(user, i.Member)
	}
	return r
}

func (r *interactionReplier) UserID() string      { return r.userID }
func (r *interactionReplier) DisplayName() string { return r.displayName }
func (r *interactionReplier) Mention() string     { return "<@" + r.userID + ">" }
func (r *interactionReplier) GuildID() string     { return r.guildID }
func (r *interactionReplier) ChannelID() string   { return r.channelID }

func (r *interactionReplier) Ack(_ context.Context, content string) error {
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	return err
}

func (r *interactionReplier) FollowupError(_ context.Context, content string) error {
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	return err
}

func (r *interactionReplier) SendImage(_ context.Context, img platform.Image) error {
	content := fmt.Sprintf("%s %s\n%s", platform.GeneratedImagePrefix, img.Caption, img.Details)
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: content,
		Files: []*discordgo.File{{
			Name:        img.Filename,
			ContentType: "image/png",
			Reader:      bytes.NewReader(img.Data),
		}},
		Components: r.controls.rows(img.ControlsKey),
	})
	if err != nil {
		return fmt.Errorf("deliver image: %w", err)
	}
	return nil
}
