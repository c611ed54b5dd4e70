package bot

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ladlebot/ladle/internal/imagegen"
	"github.com/ladlebot/ladle/internal/llm"
	"github.com/ladlebot/ladle/internal/queue"
	"github.com/ladlebot/ladle/internal/stats"
)

// nineBallMaxTokens keeps the /9ball verdicts terse.
const nineBallMaxTokens = 45

// Chat check for /status: one tiny bounded completion.
const (
	chatCheckMaxTokens = 10
	chatCheckTimeout   = 10 * time.Second
)

var eightBallAnswers = []string{
	"It is certain.",
	"Without a doubt.",
	"Yes, definitely.",
	"You may rely on it.",
	"Most likely.",
	"Outlook good.",
	"Yes.",
	"Signs point to yes.",
	"Reply hazy, try again.",
	"Ask again later.",
	"Better not tell you now.",
	"Cannot predict now.",
	"Concentrate and ask again.",
	"Don't count on it.",
	"My reply is no.",
	"My sources say no.",
	"Outlook not so good.",
	"Very doubtful.",
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "image",
			Description: "Generate an image from a prompt",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prompt",
					Description: "What to generate",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "size",
					Description: "Image shape",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "square", Value: "square"},
						{Name: "wide", Value: "wide"},
						{Name: "tall", Value: "tall"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "seed",
					Description: "Seed for reproducible results",
				},
			},
		},
		{
			Name:        "stats",
			Description: "Show the server image leaderboard",
		},
		{
			Name:        "status",
			Description: "Show bot uptime, queue depth, and image server health",
		},
		{
			Name:        "8ball",
			Description: "Ask the magic 8-ball",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "question",
					Description: "Your yes/no question",
					Required:    true,
				},
			},
		},
		{
			Name:        "9ball",
			Description: "Ask the slightly unhinged 9-ball",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "question",
					Description: "Your question",
					Required:    true,
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID
	for _, cmd := range commandDefinitions() {
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return fmt.Errorf("register command %q: %w", cmd.Name, err)
		}
	}
	return nil
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.onCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.onComponent(s, i)
	case discordgo.InteractionModalSubmit:
		b.onModalSubmit(s, i)
	}
}

func (b *Bot) onCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	user := interactionUser(i)
	if d := b.admit(user.ID, memberRoles(s, i.GuildID, i.Member)); !d.Allowed {
		b.respondEphemeral(i, rateLimitMessage(d))
		return
	}

	switch data.Name {
	case "image":
		b.handleImage(i, data)
	case "stats":
		b.handleStats(i)
	case "status":
		b.handleStatus(i)
	case "8ball":
		b.handleEightBall(i, data)
	case "9ball":
		b.handleNineBall(i, data)
	}
}

func commandOptions(data discordgo.ApplicationCommandInteractionData) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
	for _, o := range data.Options {
		opts[o.Name] = o
	}
	return opts
}

func (b *Bot) handleImage(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := commandOptions(data)

	prompt := strings.TrimSpace(opts["prompt"].StringValue())
	if prompt == "" {
		b.respondEphemeral(i, "The prompt can't be empty.")
		return
	}

	width, height := imagegen.SquareWidth, imagegen.SquareHeight
	if o, ok := opts["size"]; ok {
		switch o.StringValue() {
		case "wide":
			width, height = imagegen.WideWidth, imagegen.WideHeight
		case "tall":
			width, height = imagegen.TallWidth, imagegen.TallHeight
		}
	}

	seed := int64(-1)
	if o, ok := opts["seed"]; ok && o.IntValue() >= 0 {
		seed = o.IntValue()
	}

	if err := b.deferEphemeral(i); err != nil {
		b.logger.Warn("interaction defer failed", "error", err)
		return
	}

	r := newInteractionReplier(b, i)
	job := queue.NewGenerateJob(r, prompt, width, height, seed)
	pos := b.queue.Enqueue(job)
	if pos == 0 {
		_ = r.FollowupError(context.Background(), "Shutting down, try again in a bit.")
		return
	}
	_ = r.Ack(context.Background(), fmt.Sprintf("On it. Queue position: %d", pos))
}

func (b *Bot) handleStats(i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		b.respondEphemeral(i, "Only administrators can view the stats.")
		return
	}

	bucket := i.GuildID
	if bucket == "" {
		bucket = stats.GlobalBucket
	}

	images, err := b.stats.Top(bucket, stats.StatImagesGenerated, 5)
	if err != nil {
		b.logger.Error("stats lookup failed", "error", err)
		b.respondEphemeral(i, "Couldn't read the stats right now.")
		return
	}
	chats, err := b.stats.Top(bucket, stats.StatChatResponses, 5)
	if err != nil {
		b.logger.Error("stats lookup failed", "error", err)
		b.respondEphemeral(i, "Couldn't read the stats right now.")
		return
	}

	if len(images) == 0 && len(chats) == 0 {
		b.respondEphemeral(i, "Nothing recorded here yet. Try /image!")
		return
	}
	b.respondPublic(i, leaderboardContent(images, chats))
}

// isAdmin reports whether the invoking member holds the administrator
// permission. Direct messages have no member and are allowed; the only
// stats there are the caller's own.
func isAdmin(i *discordgo.InteractionCreate) bool {
	if i.GuildID == "" {
		return true
	}
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func leaderboardContent(images, chats []stats.Leader) string {
	var sb strings.Builder
	sb.WriteString("**Image leaderboard**\n")
	if len(images) == 0 {
		sb.WriteString("No images generated yet.\n")
	}
	for rank, l := range images {
		fmt.Fprintf(&sb, "%d. %s — %d images\n", rank+1, l.Username, l.ImagesGenerated)
	}
	sb.WriteString("\n**Chat leaderboard**\n")
	if len(chats) == 0 {
		sb.WriteString("No chat responses yet.\n")
	}
	for rank, l := range chats {
		fmt.Fprintf(&sb, "%d. %s — %d chats\n", rank+1, l.Username, l.ChatResponses)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) handleStatus(i *discordgo.InteractionCreate) {
	if err := b.deferEphemeral(i); err != nil {
		b.logger.Warn("interaction defer failed", "error", err)
		return
	}

	ctx := context.Background()
	content := statusContent(
		time.Since(b.startedAt),
		b.queue.Size(),
		b.pipeline.Healthy(ctx),
		b.checkChat(ctx),
	)

	r := newInteractionReplier(b, i)
	_ = r.Ack(ctx, content)
}

// checkChat runs a tiny completion to confirm the chat path works end
// to end, not just that the process is up.
func (b *Bot) checkChat(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, chatCheckTimeout)
	defer cancel()

	_, err := b.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: "Reply with the single word: ok"},
	}, llm.Options{MaxTokens: chatCheckMaxTokens})
	if err != nil {
		b.logger.Warn("chat check failed", "error", err)
		return false
	}
	return true
}

func statusContent(uptime time.Duration, queueDepth int, fluxOK, chatOK bool) string {
	mark := func(ok bool) string {
		if ok {
			return "healthy ✅"
		}
		return "down ❌"
	}
	return fmt.Sprintf("Uptime: %s\nQueue depth: %d\nImage server: %s\nChat: %s",
		formatUptime(uptime), queueDepth, mark(fluxOK), mark(chatOK))
}

func (b *Bot) handleEightBall(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	question := commandOptions(data)["question"].StringValue()
	answer := eightBallAnswers[rand.IntN(len(eightBallAnswers))]
	b.respondPublic(i, fmt.Sprintf("🎱 *%s*\n%s", question, answer))
}

func (b *Bot) handleNineBall(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	question := commandOptions(data)["question"].StringValue()

	if err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		b.logger.Warn("interaction defer failed", "error", err)
		return
	}

	answer, err := b.completer.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: b.cfg.NineBallStyle},
		{Role: llm.RoleUser, Content: question},
	}, llm.Options{Temperature: float32(b.cfg.Temperature), MaxTokens: nineBallMaxTokens})
	if err != nil {
		b.logger.Error("9ball completion failed", "error", err)
		answer = "The 9-ball is sulking. Ask later."
	}

	_, err = b.session.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: fmt.Sprintf("🎱 *%s*\n%s", question, llm.CleanResponse(b.cfg.TriggerWord, answer)),
	})
	if err != nil {
		b.logger.Warn("9ball followup failed", "error", err)
	}
}

func (b *Bot) respondPublic(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		b.logger.Warn("interaction response failed", "error", err)
	}
}

// formatUptime renders a duration as "1 day, 3 hours, 12 minutes",
// omitting leading zero units. Below a minute it reports seconds.
func formatUptime(d time.Duration) string {
	total := int64(d.Round(time.Second) / time.Second)
	if total < 60 {
		return pluralize(total, "second")
	}

	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60

	var parts []string
	if days > 0 {
		parts = append(parts, pluralize(days, "day"))
	}
	if hours > 0 || len(parts) > 0 {
		parts = append(parts, pluralize(hours, "hour"))
	}
	parts = append(parts, pluralize(minutes, "minute"))
	return strings.Join(parts, ", ")
}

func pluralize(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
