package bot

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ladlebot/ladle/internal/llm"
	"github.com/ladlebot/ladle/internal/stats"
)

// maxChunkLen is the per-message length limit for chat replies; long
// completions are split on word boundaries.
const maxChunkLen = 1500

// chunkDelay spaces consecutive reply chunks so they arrive in order
// without tripping the platform's own limits.
const chunkDelay = 500 * time.Millisecond

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	ctx := context.Background()
	mentioned := b.isMentioned(m.Message)
	if mentioned {
		if err := b.stats.Increment(m.Author.ID, m.Author.Username, stats.StatMentions, m.GuildID); err != nil {
			b.logger.Warn("mention stat failed", "error", err)
		}
	}

	b.describeAttachments(ctx, m.Message)

	if !b.shouldRespond(m.Message, mentioned) {
		return
	}

	roles := memberRoles(s, m.GuildID, m.Member)
	if d := b.admit(m.Author.ID, roles); !d.Allowed {
		if _, err := s.ChannelMessageSendReply(m.ChannelID, rateLimitMessage(d), m.Reference()); err != nil {
			b.logger.Warn("rate limit notice failed", "error", err)
		}
		return
	}

	b.respond(ctx, s, m)
}

// isMentioned reports whether the message mentions the bot directly.
func (b *Bot) isMentioned(m *discordgo.Message) bool {
	botID := b.botID()
	for _, u := range m.Mentions {
		if u.ID == botID {
			return true
		}
	}
	return false
}

// shouldRespond decides whether a plain message gets a chat reply:
// direct mentions and trigger-word matches always do, messages in an
// always-on channel do, and anything else has a small interject
// chance.
func (b *Bot) shouldRespond(m *discordgo.Message, mentioned bool) bool {
	if mentioned {
		return true
	}
	if b.triggerRe.MatchString(m.Content) {
		return true
	}
	for _, id := range b.cfg.AllowedChannels {
		if id == m.ChannelID {
			return true
		}
	}
	return rand.Float64() < b.cfg.InterjectProbability
}

// describeAttachments runs image attachments through the vision
// endpoint and caches the descriptions for the context assembler.
func (b *Bot) describeAttachments(ctx context.Context, m *discordgo.Message) {
	if b.describer == nil {
		return
	}
	for _, att := range m.Attachments {
		if !strings.HasPrefix(att.ContentType, "image/") {
			continue
		}
		desc, err := b.describer.Describe(ctx, att.URL, att.Filename)
		if err != nil {
			b.logger.Warn("attachment description failed", "filename", att.Filename, "error", err)
			continue
		}
		b.assembler.RecordImageDescription(m.ID, desc)
		return
	}
}

func (b *Bot) respond(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	_ = s.ChannelTyping(m.ChannelID)

	ch := &channelHandle{session: s, channelID: m.ChannelID, botID: b.botID()}
	entries, err := b.assembler.Build(ctx, ch, b.cfg.RecentMessageLimit, m.ID)
	if err != nil {
		b.logger.Error("context build failed", "channel", m.ChannelID, "error", err)
		return
	}

	msgs := make([]llm.Message, 0, len(entries)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: b.cfg.BehaviourFor(m.GuildID)})
	for _, e := range entries {
		msgs = append(msgs, llm.Message{Role: e.Role, Content: e.Content})
	}
	author := displayName(m.Author, m.Member)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: author + ": " + m.Content})

	reply, err := b.completer.Complete(ctx, msgs, llm.Options{
		Temperature: float32(b.cfg.Temperature),
		MaxTokens:   int32(b.cfg.MaxTokens),
	})
	if err != nil {
		b.logger.Error("completion failed", "channel", m.ChannelID, "error", err)
		return
	}

	reply = llm.CleanResponse(b.cfg.TriggerWord, reply)
	for i, chunk := range chunkMessage(reply, maxChunkLen) {
		if i > 0 {
			time.Sleep(chunkDelay)
		}
		if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			b.logger.Error("reply send failed", "channel", m.ChannelID, "error", err)
			return
		}
	}

	if err := b.stats.Increment(m.Author.ID, m.Author.Username, stats.StatChatResponses, m.GuildID); err != nil {
		b.logger.Warn("chat stat failed", "error", err)
	}
}

// chunkMessage splits s into pieces of at most limit bytes, breaking
// on word boundaries where possible.
func chunkMessage(s string, limit int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if len(s) <= limit {
		return []string{s}
	}

	var chunks []string
	for len(s) > limit {
		cut := strings.LastIndexByte(s[:limit+1], ' ')
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
