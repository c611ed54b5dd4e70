package imagegen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/ladlebot/ladle/internal/llm"
)

// termsOnlyProbability is how often the random action uses sampled
// terms verbatim instead of a rewritten template prompt.
const termsOnlyProbability = 0.5

// Sampling parameters for the template-rewrite call.
const (
	randomTemperature = 0.8
	randomMaxTokens   = 325
)

// TermSet holds the category word lists the random action samples from.
type TermSet struct {
	Themes     []string
	Characters []string
	Styles     []string
}

// LoadTermSet reads the three comma-separated category files. A file
// that is missing or empty leaves its category empty; sampling skips
// empty categories.
func LoadTermSet(themesFile, charactersFile, stylesFile string) (*TermSet, error) {
	themes, err := readTerms(themesFile)
	if err != nil {
		return nil, err
	}
	characters, err := readTerms(charactersFile)
	if err != nil {
		return nil, err
	}
	styles, err := readTerms(stylesFile)
	if err != nil {
		return nil, err
	}
	return &TermSet{Themes: themes, Characters: characters, Styles: styles}, nil
}

func readTerms(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read term file %q: %w", path, err)
	}
	var terms []string
	for t := range strings.SplitSeq(string(data), ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms, nil
}

// Sample draws one term from each non-empty category.
func (t *TermSet) Sample() []string {
	var out []string
	for _, category := range [][]string{t.Themes, t.Characters, t.Styles} {
		if len(category) > 0 {
			out = append(out, category[rand.IntN(len(category))])
		}
	}
	return out
}

// RandomSpec is the prompt and dimensions chosen for a random job.
type RandomSpec struct {
	Prompt      string
	Width       int
	Height      int
	PreDuration time.Duration
}

// Random builds a random generation spec: either sampled terms used
// verbatim, or the configured template combined with terms and
// rewritten by the language model. Dimensions are drawn uniformly from
// the square, wide and tall presets.
func (p *Pipeline) Random(ctx context.Context, terms *TermSet, template string) RandomSpec {
	sampled := terms.Sample()
	joined := strings.Join(sampled, ", ")

	spec := RandomSpec{Prompt: joined}
	if len(sampled) == 0 || (template != "" && rand.Float64() >= termsOnlyProbability) {
		start := time.Now()
		out, err := p.completer.Complete(ctx, []llm.Message{
			{Role: llm.RoleSystem, Content: template},
			{Role: llm.RoleUser, Content: joined},
		}, llm.Options{Temperature: randomTemperature, MaxTokens: randomMaxTokens})
		spec.PreDuration = time.Since(start)
		if err != nil {
			p.logger.Warn("random prompt rewrite failed, using terms", "error", err)
		} else if out = strings.TrimSpace(strings.Trim(out, `"`)); out != "" {
			spec.Prompt = out
		}
	}
	if spec.Prompt == "" {
		spec.Prompt = template
	}

	switch rand.IntN(3) {
	case 0:
		spec.Width, spec.Height = SquareWidth, SquareHeight
	case 1:
		spec.Width, spec.Height = WideWidth, WideHeight
	default:
		spec.Width, spec.Height = TallWidth, TallHeight
	}
	return spec
}
