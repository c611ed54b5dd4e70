// Package history assembles the conversation context submitted to the
// language model: recent channel messages enriched with cached URL
// summaries and image descriptions, deduplicated, in chronological
// order.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ladlebot/ladle/internal/cache"
	"github.com/ladlebot/ladle/internal/log"
	"github.com/ladlebot/ladle/internal/platform"
	"github.com/ladlebot/ladle/internal/webextract"
)

// Entry roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// currentTopicSize is how many of the most recent surviving messages
// form the "current topic" partition.
const currentTopicSize = 5

// commandPrefix marks legacy text-command invocations, which carry no
// conversational value.
const commandPrefix = "!"

// Entry is one message in the assembled context window.
type Entry struct {
	Role    string
	Content string
}

// Summarizer turns a URL into a short tagged text summary. An empty
// result with a nil error is a confirmed miss and is cached as such.
type Summarizer interface {
	Summarize(ctx context.Context, url string) (string, error)
}

// Assembler builds context windows. It owns the URL-summary and
// image-description caches; all cache access is serialized through its
// mutex.
type Assembler struct {
	mu     sync.Mutex
	urls   *cache.Cache[string, string]
	images *cache.Cache[string, string]

	summarizer Summarizer
	maxURLs    int
	logger     log.Logger
}

// New creates an assembler. ttl governs both caches; maxURLs caps how
// many links are summarized per message.
func New(summarizer Summarizer, ttl time.Duration, maxURLs int, logger log.Logger) *Assembler {
	return &Assembler{
		urls:       cache.New[string, string](ttl),
		images:     cache.New[string, string](ttl),
		summarizer: summarizer,
		maxURLs:    maxURLs,
		logger:     logger,
	}
}

// RecordImageDescription caches a description for the message that
// carried the image. Build appends it to that message's content.
func (a *Assembler) RecordImageDescription(messageID, description string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.images.Put(messageID, description, time.Now())
}

// Build fetches the most recent limit messages from ch and assembles
// the context window, oldest first. The message named by excludeID is
// skipped, as are command invocations and the bot's own image
// deliveries. Expired cache entries are purged before returning.
func (a *Assembler) Build(ctx context.Context, ch platform.History, limit int, excludeID string) ([]Entry, error) {
	msgs, err := ch.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch recent messages: %w", err)
	}

	kept := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == excludeID {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(m.Content), commandPrefix) {
			continue
		}
		if m.FromBot && strings.HasPrefix(m.Content, platform.GeneratedImagePrefix) {
			continue
		}
		kept = append(kept, m)
	}

	contents := a.enrich(ctx, kept)

	// Dedup by (author, final content), keeping the first (most
	// recent) occurrence.
	type item struct {
		msg     platform.Message
		content string
	}
	seen := make(map[string]struct{}, len(kept))
	items := make([]item, 0, len(kept))
	for i, m := range kept {
		key := m.AuthorName + ":" + contents[i]
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, item{msg: m, content: contents[i]})
	}

	// Current topic first, background after, then reverse the whole
	// thing so the model reads oldest to newest.
	split := min(currentTopicSize, len(items))
	ordered := make([]item, 0, len(items))
	ordered = append(ordered, items[:split]...)
	ordered = append(ordered, items[split:]...)

	entries := make([]Entry, len(ordered))
	for i, it := range ordered {
		role := RoleUser
		if it.msg.FromBot {
			role = RoleAssistant
		}
		entries[len(ordered)-1-i] = Entry{
			Role:    role,
			Content: fmt.Sprintf("%s: %s", it.msg.AuthorName, it.content),
		}
	}

	a.purge()
	return entries, nil
}

// enrich produces the final content for each kept message: URL
// summaries appended in link order, then any cached image description.
// Fetches for uncached URLs run concurrently; ordering of the output
// does not depend on fetch completion order.
func (a *Assembler) enrich(ctx context.Context, kept []platform.Message) []string {
	type slot struct {
		summaries []string
		urls      []string
	}
	slots := make([]slot, len(kept))

	var wg sync.WaitGroup
	for i, m := range kept {
		urls := webextract.ExtractURLs(m.Content, a.maxURLs)
		slots[i] = slot{summaries: make([]string, len(urls)), urls: urls}
		for j, u := range urls {
			if v, ok := a.cachedURL(u); ok {
				slots[i].summaries[j] = v
				continue
			}
			wg.Add(1)
			go func(i, j int, u string) {
				defer wg.Done()
				summary, err := a.summarizer.Summarize(ctx, u)
				if err != nil {
					a.logger.Warn("url summary failed", "url", u, "error", err)
					summary = ""
				}
				a.putURL(u, summary)
				slots[i].summaries[j] = summary
			}(i, j, u)
		}
	}
	wg.Wait()

	contents := make([]string, len(kept))
	for i, m := range kept {
		content := m.Content
		for _, s := range slots[i].summaries {
			if s != "" {
				content += " " + s
			}
		}
		if desc, ok := a.cachedImage(m.ID); ok && desc != "" {
			if content == "" {
				content = "[shared an image]"
			}
			content += " [Image description: " + desc + "]"
		}
		contents[i] = content
	}
	return contents
}

func (a *Assembler) cachedURL(u string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.urls.Get(u, time.Now())
}

func (a *Assembler) putURL(u, summary string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.urls.Put(u, summary, time.Now())
}

func (a *Assembler) cachedImage(messageID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.images.Get(messageID, time.Now())
}

func (a *Assembler) purge() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	if n := a.urls.PurgeExpired(now) + a.images.PurgeExpired(now); n > 0 {
		a.logger.Debug("purged expired cache entries", "count", n)
	}
}
