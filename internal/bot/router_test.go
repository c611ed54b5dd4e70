package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladlebot/ladle/internal/config"
	"github.com/ladlebot/ladle/internal/imagegen"
	"github.com/ladlebot/ladle/internal/llm"
	"github.com/ladlebot/ladle/internal/log"
	"github.com/ladlebot/ladle/internal/platform"
	"github.com/ladlebot/ladle/internal/queue"
	"github.com/ladlebot/ladle/internal/stats"
)

type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(context.Context, []llm.Message, llm.Options) (string, error) {
	return s.reply, s.err
}

type fakeReplier struct {
	images []platform.Image
	errors []string
}

func (*fakeReplier) UserID() string      { return "u1" }
func (*fakeReplier) DisplayName() string { return "alice" }
func (*fakeReplier) Mention() string     { return "<@u1>" }
func (*fakeReplier) GuildID() string     { return "srv1" }
func (*fakeReplier) ChannelID() string   { return "chan1" }

func (*fakeReplier) Ack(context.Context, string) error { return nil }

func (f *fakeReplier) FollowupError(_ context.Context, content string) error {
	f.errors = append(f.errors, content)
	return nil
}

func (f *fakeReplier) SendImage(_ context.Context, img platform.Image) error {
	f.images = append(f.images, img)
	return nil
}

// fluxRecorder fakes the image server and records the form fields of
// the last request.
type fluxRecorder struct {
	srv  *httptest.Server
	form map[string]string
}

func newFluxRecorder(t *testing.T) *fluxRecorder {
	t.Helper()
	f := &fluxRecorder{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.form = map[string]string{}
		for k := range r.PostForm {
			f.form[k] = r.PostForm.Get(k)
		}
		w.Write([]byte("image bytes"))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func newDispatchBot(t *testing.T, flux *fluxRecorder, completer llm.Completer) *Bot {
	t.Helper()
	client := imagegen.NewClient(flux.srv.URL, time.Minute, log.NewNop())
	return &Bot{
		cfg:      &config.Config{},
		pipeline: imagegen.NewPipeline(client, completer, "rewrite grandly", log.NewNop()),
		queue:    queue.New(log.NewNop()),
		stats:    stats.New(filepath.Join(t.TempDir(), "user_stats.json"), log.NewNop()),
		controls: newControlRegistry(),
		logger:   log.NewNop(),
	}
}

func TestDispatchFancyKeepsSeed(t *testing.T) {
	flux := newFluxRecorder(t)
	b := newDispatchBot(t, flux, &stubCompleter{reply: "a resplendent cat, oil on canvas"})
	r := &fakeReplier{}

	job := queue.NewButtonJob(r, queue.ActionFancy, "a cat", 1024, 1024, 42)
	require.NoError(t, b.Dispatch(context.Background(), job))

	assert.Equal(t, "42", flux.form["seed"], "fancy reuses the delivered image's seed")
	assert.Equal(t, "a resplendent cat, oil on canvas", flux.form["prompt"])
	require.Len(t, r.images, 1)
	assert.Empty(t, r.errors)
}

func TestDispatchRemixDrawsFreshSeed(t *testing.T) {
	flux := newFluxRecorder(t)
	b := newDispatchBot(t, flux, &stubCompleter{})
	r := &fakeReplier{}

	job := queue.NewButtonJob(r, queue.ActionRemix, "a cat", 1024, 1024, -1)
	require.NoError(t, b.Dispatch(context.Background(), job))

	assert.NotEqual(t, "-1", flux.form["seed"])
	assert.NotEmpty(t, flux.form["seed"])
	assert.Equal(t, "a cat", flux.form["prompt"])
}

func TestDispatchWideKeepsSeedAndPrompt(t *testing.T) {
	flux := newFluxRecorder(t)
	b := newDispatchBot(t, flux, &stubCompleter{})
	r := &fakeReplier{}

	job := queue.NewButtonJob(r, queue.ActionWide, "a cat", imagegen.WideWidth, imagegen.WideHeight, 7)
	require.NoError(t, b.Dispatch(context.Background(), job))

	assert.Equal(t, "7", flux.form["seed"])
	assert.Equal(t, "1920", flux.form["width"])
	assert.Equal(t, "1024", flux.form["height"])
}

func TestDispatchServiceErrorReportsToRequester(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := imagegen.NewClient(srv.URL, time.Minute, log.NewNop())
	b := &Bot{
		cfg:      &config.Config{},
		pipeline: imagegen.NewPipeline(client, &stubCompleter{}, "", log.NewNop()),
		queue:    queue.New(log.NewNop()),
		stats:    stats.New(filepath.Join(t.TempDir(), "user_stats.json"), log.NewNop()),
		controls: newControlRegistry(),
		logger:   log.NewNop(),
	}
	r := &fakeReplier{}

	job := queue.NewGenerateJob(r, "a cat", 1024, 1024, 1)
	err := b.Dispatch(context.Background(), job)

	require.Error(t, err)
	require.Len(t, r.errors, 1)
	assert.Contains(t, r.errors[0], "503")
	assert.Empty(t, r.images)
}
