package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/ladlebot/ladle/internal/imagegen"
	"github.com/ladlebot/ladle/internal/queue"
)

// customIDPrefix namespaces this bot's component custom IDs.
const customIDPrefix = "ladle"

// controlTTL is how long button state stays resolvable. Presses on
// older deliveries get a polite "expired" notice.
const controlTTL = 24 * time.Hour

// controlState is the prompt/dimensions/seed behind one delivered
// image's button row, so every follow-up action can re-derive its job.
type controlState struct {
	Prompt   string
	Width    int
	Height   int
	Seed     int64
	recorded time.Time
}

// controlRegistry maps opaque keys embedded in component custom IDs to
// their control state. In-memory only; state does not survive a
// restart.
type controlRegistry struct {
	mu      sync.Mutex
	entries map[string]controlState
}

func newControlRegistry() *controlRegistry {
	return &controlRegistry{entries: make(map[string]controlState)}
}

func (r *controlRegistry) register(st controlState) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for k, v := range r.entries {
		if now.Sub(v.recorded) > controlTTL {
			delete(r.entries, k)
		}
	}

	key := uuid.NewString()
	st.recorded = now
	r.entries[key] = st
	return key
}

func (r *controlRegistry) lookup(key string) (controlState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.entries[key]
	if !ok || time.Since(st.recorded) > controlTTL {
		return controlState{}, false
	}
	return st, true
}

// rows builds the two-row follow-up control set for a delivery.
func (r *controlRegistry) rows(key string) []discordgo.MessageComponent {
	btn := func(label string, action queue.ButtonAction, style discordgo.ButtonStyle) discordgo.Button {
		return discordgo.Button{
			Label:    label,
			Style:    style,
			CustomID: fmt.Sprintf("%s:%s:%s", customIDPrefix, action, key),
		}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			btn("Edit", queue.ActionEdit, discordgo.PrimaryButton),
			btn("Fancy", queue.ActionFancy, discordgo.SecondaryButton),
			btn("Remix", queue.ActionRemix, discordgo.SecondaryButton),
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			btn("Random", queue.ActionRandom, discordgo.SecondaryButton),
			btn("Wide", queue.ActionWide, discordgo.SecondaryButton),
			btn("Tall", queue.ActionTall, discordgo.SecondaryButton),
		}},
	}
}

// parseCustomID splits "ladle:<action>:<key>"; ok is false for
// components that are not ours.
func parseCustomID(id string) (action queue.ButtonAction, key string, ok bool) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] != customIDPrefix {
		return "", "", false
	}
	return queue.ButtonAction(parts[1]), parts[2], true
}

func (b *Bot) onComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	action, key, ok := parseCustomID(data.CustomID)
	if !ok {
		return
	}

	st, ok := b.controls.lookup(key)
	if !ok {
		b.respondEphemeral(i, "Those controls have expired. Generate a fresh image to keep going.")
		return
	}

	user := interactionUser(i)
	if d := b.admit(user.ID, memberRoles(s, i.GuildID, i.Member)); !d.Allowed {
		b.respondEphemeral(i, rateLimitMessage(d))
		return
	}

	if action == queue.ActionEdit {
		b.openEditModal(i, key, st)
		return
	}

	if err := b.deferEphemeral(i); err != nil {
		b.logger.Warn("interaction defer failed", "error", err)
		return
	}

	job := b.buttonJob(i, action, st)
	pos := b.queue.Enqueue(job)
	if pos == 0 {
		_ = job.Requester().FollowupError(context.Background(), "Shutting down, try again in a bit.")
		return
	}
	_ = job.Requester().Ack(context.Background(), fmt.Sprintf("On it. Queue position: %d", pos))
}

// buttonJob translates a pressed button into its queue job. Remix gets
// a fresh seed; wide and tall force their preset dimensions.
func (b *Bot) buttonJob(i *discordgo.InteractionCreate, action queue.ButtonAction, st controlState) *queue.ButtonJob {
	r := newInteractionReplier(b, i)

	prompt, width, height, seed := st.Prompt, st.Width, st.Height, st.Seed
	switch action {
	case queue.ActionRemix:
		seed = -1
	case queue.ActionWide:
		width, height = imagegen.WideWidth, imagegen.WideHeight
	case queue.ActionTall:
		width, height = imagegen.TallWidth, imagegen.TallHeight
	case queue.ActionRandom:
		prompt, width, height, seed = "", 0, 0, -1
	}
	return queue.NewButtonJob(r, action, prompt, width, height, seed)
}

// Edit modal field IDs.
const (
	modalFieldPrompt = "prompt"
	modalFieldWidth  = "width"
	modalFieldHeight = "height"
	modalFieldSeed   = "seed"
)

func (b *Bot) openEditModal(i *discordgo.InteractionCreate, key string, st controlState) {
	field := func(id, label, value string, style discordgo.TextInputStyle, required bool) discordgo.ActionsRow {
		return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID: id,
				Label:    label,
				Style:    style,
				Value:    value,
				Required: required,
			},
		}}
	}

	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: fmt.Sprintf("%s:%s:%s", customIDPrefix, queue.ActionEdit, key),
			Title:    "Edit image",
			Components: []discordgo.MessageComponent{
				field(modalFieldPrompt, "Prompt", st.Prompt, discordgo.TextInputParagraph, true),
				field(modalFieldWidth, "Width", strconv.Itoa(st.Width), discordgo.TextInputShort, true),
				field(modalFieldHeight, "Height", strconv.Itoa(st.Height), discordgo.TextInputShort, true),
				field(modalFieldSeed, "Seed (blank for random)", strconv.FormatInt(st.Seed, 10), discordgo.TextInputShort, false),
			},
		},
	})
	if err != nil {
		b.logger.Warn("modal open failed", "error", err)
	}
}

func (b *Bot) onModalSubmit(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	action, _, ok := parseCustomID(data.CustomID)
	if !ok || action != queue.ActionEdit {
		return
	}

	values := modalValues(data.Components)
	prompt := strings.TrimSpace(values[modalFieldPrompt])
	if prompt == "" {
		b.respondEphemeral(i, "The prompt can't be empty.")
		return
	}

	width, werr := strconv.Atoi(strings.TrimSpace(values[modalFieldWidth]))
	height, herr := strconv.Atoi(strings.TrimSpace(values[modalFieldHeight]))
	if werr != nil || herr != nil || width <= 0 || height <= 0 {
		b.respondEphemeral(i, "Width and height must be positive whole numbers.")
		return
	}
	width = imagegen.RoundDimension(width)
	height = imagegen.RoundDimension(height)

	seed, err := strconv.ParseInt(strings.TrimSpace(values[modalFieldSeed]), 10, 64)
	if err != nil || seed < 0 {
		seed = -1
	}

	if err := b.deferEphemeral(i); err != nil {
		b.logger.Warn("interaction defer failed", "error", err)
		return
	}

	r := newInteractionReplier(b, i)
	job := queue.NewButtonJob(r, queue.ActionEdit, prompt, width, height, seed)
	pos := b.queue.Enqueue(job)
	if pos == 0 {
		_ = r.FollowupError(context.Background(), "Shutting down, try again in a bit.")
		return
	}
	_ = r.Ack(context.Background(), fmt.Sprintf("On it. Queue position: %d", pos))
}

func modalValues(components []discordgo.MessageComponent) map[string]string {
	values := make(map[string]string)
	for _, row := range components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if ti, ok := c.(*discordgo.TextInput); ok {
				values[ti.CustomID] = ti.Value
			}
		}
	}
	return values
}

func (b *Bot) deferEphemeral(i *discordgo.InteractionCreate) error {
	return b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (b *Bot) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("interaction response failed", "error", err)
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.User != nil {
		return i.User
	}
	if i.Member != nil {
		return i.Member.User
	}
	return &discordgo.User{}
}
