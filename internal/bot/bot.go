// Package bot is the Discord adapter: it receives gateway events,
// applies admission control, and routes work to the chat path or the
// image job queue.
package bot

import (
	"fmt"
	"regexp"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ladlebot/ladle/internal/config"
	"github.com/ladlebot/ladle/internal/history"
	"github.com/ladlebot/ladle/internal/imagegen"
	"github.com/ladlebot/ladle/internal/llm"
	"github.com/ladlebot/ladle/internal/log"
	"github.com/ladlebot/ladle/internal/queue"
	"github.com/ladlebot/ladle/internal/ratelimit"
	"github.com/ladlebot/ladle/internal/stats"
	"github.com/ladlebot/ladle/internal/vision"
)

// Options bundles the collaborators a Bot needs.
type Options struct {
	Config    *config.Config
	Completer llm.Completer
	Assembler *history.Assembler
	Pipeline  *imagegen.Pipeline
	Terms     *imagegen.TermSet
	Queue     *queue.Queue
	Limiter   *ratelimit.Limiter
	Stats     *stats.Store
	Describer vision.Describer
	Logger    log.Logger
}

// Bot owns the Discord session and the event handlers.
type Bot struct {
	session   *discordgo.Session
	cfg       *config.Config
	completer llm.Completer
	assembler *history.Assembler
	pipeline  *imagegen.Pipeline
	terms     *imagegen.TermSet
	queue     *queue.Queue
	limiter   *ratelimit.Limiter
	stats     *stats.Store
	describer vision.Describer
	controls  *controlRegistry
	logger    log.Logger

	triggerRe *regexp.Regexp
	startedAt time.Time
}

// New builds the bot and registers its gateway handlers. Call Start to
// open the session.
func New(opts Options) (*Bot, error) {
	session, err := discordgo.New("Bot " + opts.Config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	b := &Bot{
		session:   session,
		cfg:       opts.Config,
		completer: opts.Completer,
		assembler: opts.Assembler,
		pipeline:  opts.Pipeline,
		terms:     opts.Terms,
		queue:     opts.Queue,
		limiter:   opts.Limiter,
		stats:     opts.Stats,
		describer: opts.Describer,
		controls:  newControlRegistry(),
		logger:    opts.Logger,
		triggerRe: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(opts.Config.TriggerWord) + `\b`),
	}

	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onInteractionCreate)
	return b, nil
}

// Start opens the gateway connection and registers the slash commands.
func (b *Bot) Start() error {
	b.startedAt = time.Now()
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	if err := b.registerCommands(); err != nil {
		b.session.Close()
		return err
	}
	b.logger.Info("bot started", "user", b.session.State.User.Username)
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	b.logger.Info("bot stopping")
	return b.session.Close()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("gateway ready", "session", r.SessionID, "guilds", len(r.Guilds))
}

// botID is only valid after the session opened.
func (b *Bot) botID() string {
	if b.session.State != nil && b.session.State.User != nil {
		return b.session.State.User.ID
	}
	return ""
}

// admit runs every user-initiated entry point through the rate
// limiter. Sub-actions of an already admitted interaction do not call
// it again.
func (b *Bot) admit(userID string, roles []string) ratelimit.Decision {
	return b.limiter.Admit(userID, time.Now(), roles)
}

func rateLimitMessage(d ratelimit.Decision) string {
	return fmt.Sprintf("You're going a bit fast. At most %d interactions per minute, give it a moment.", d.Limit)
}

func memberRoles(s *discordgo.Session, guildID string, member *discordgo.Member) []string {
	if member == nil || guildID == "" {
		return nil
	}
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return nil
	}
	var names []string
	for _, roleID := range member.Roles {
		for _, role := range guild.Roles {
			if role.ID == roleID {
				names = append(names, role.Name)
				break
			}
		}
	}
	return names
}

func displayName(user *discordgo.User, member *discordgo.Member) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}
