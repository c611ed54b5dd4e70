package webextract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladlebot/ladle/internal/log"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{
			name: "single url keeps host only",
			text: "check out https://example.com/articles/1 sometime",
			max:  3,
			want: []string{"https://example.com"},
		},
		{
			name: "caps at max",
			text: "https://one.test https://two.test https://three.test https://four.test",
			max:  3,
			want: []string{"https://one.test", "https://two.test", "https://three.test"},
		},
		{
			name: "http scheme and encoded host chars",
			text: "see http://my-site.example.com%2Fx",
			max:  3,
			want: []string{"http://my-site.example.com%2Fx"},
		},
		{
			name: "no urls",
			text: "nothing linked here",
			max:  3,
			want: nil,
		},
		{
			name: "disabled",
			text: "https://example.com",
			max:  0,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractURLs(tt.text, tt.max))
		})
	}
}

func TestSummarizeArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Soup Day</title></head><body>
			<article><h1>Soup Day</h1>
			<p>The annual soup festival   returns this
			weekend with over forty stalls.</p>
			<p>Entry is free and ladles are provided.</p></article>
			<script>console.log("ignore me")</script>
			</body></html>`)
	}))
	defer srv.Close()

	f := NewFetcher(0, log.NewNop())
	got, err := f.Summarize(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "[URL content: "), "got %q", got)
	assert.True(t, strings.HasSuffix(got, "]"))
	assert.Contains(t, got, "soup festival returns this weekend")
	assert.Contains(t, got, "ladles are provided")
	assert.NotContains(t, got, "ignore me")
	assert.NotContains(t, got, "\n")
}

func TestSummarizeTruncates(t *testing.T) {
	long := strings.Repeat("word ", 400)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><article><p>%s</p></article></body></html>", long)
	}))
	defer srv.Close()

	f := NewFetcher(0, log.NewNop())
	got, err := f.Summarize(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(got, "...]"), "got tail %q", got[len(got)-10:])
	// Tag prefix + 497 chars + ellipsis + closing bracket.
	assert.Len(t, got, len("[URL content: ")+maxSummaryLen+len("...]"))
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	// Two-byte runes that straddle the byte limit must not be split.
	s := strings.Repeat("é", 300)
	got := truncate(s, maxSummaryLen)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 248)+"...", got)

	assert.Equal(t, "short", truncate("short", maxSummaryLen))
}

func TestSummarizeSkipsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"not":"html"}`)
	}))
	defer srv.Close()

	f := NewFetcher(0, log.NewNop())
	got, err := f.Summarize(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummarizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(0, log.NewNop())
	got, err := f.Summarize(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummarizeUnreachable(t *testing.T) {
	f := NewFetcher(200*time.Millisecond, log.NewNop())
	got, err := f.Summarize(context.Background(), "http://127.0.0.1:1/never")
	require.NoError(t, err)
	assert.Empty(t, got)
}
