package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladlebot/ladle/internal/log"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "user_stats.json"), log.NewNop())
}

func TestIncrementGlobalAndServer(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Increment("u1", "alice", StatImagesGenerated, "srv1"))
	require.NoError(t, s.Increment("u1", "alice", StatImagesGenerated, ""))

	doc := readDoc(t, s.path)
	rec := doc["u1"]
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, 2, rec.Servers[GlobalBucket].ImagesGenerated)
	assert.Equal(t, 1, rec.Servers["srv1"].ImagesGenerated)
	assert.Equal(t, 0, rec.Servers["srv1"].ChatResponses)
}

func TestIncrementSeparateStats(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Increment("u1", "alice", StatChatResponses, "srv1"))
	require.NoError(t, s.Increment("u1", "alice", StatMentions, "srv1"))
	require.NoError(t, s.Increment("u2", "bob", StatImagesGenerated, "srv1"))

	doc := readDoc(t, s.path)
	assert.Equal(t, 1, doc["u1"].Servers["srv1"].ChatResponses)
	assert.Equal(t, 1, doc["u1"].Servers["srv1"].Mentions)
	assert.Equal(t, 0, doc["u1"].Servers["srv1"].ImagesGenerated)
	assert.Equal(t, 1, doc["u2"].Servers["srv1"].ImagesGenerated)
}

func TestIncrementUpdatesUsername(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Increment("u1", "alice", StatMentions, ""))
	require.NoError(t, s.Increment("u1", "alice_renamed", StatMentions, ""))

	doc := readDoc(t, s.path)
	assert.Equal(t, "alice_renamed", doc["u1"].Username)
	assert.Equal(t, 2, doc["u1"].Servers[GlobalBucket].Mentions)
}

func TestFlatFormatMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user_stats.json")
	flat := `{"u1":{"username":"alice","images_generated":7,"chat_responses":3,"mentions":1}}`
	require.NoError(t, os.WriteFile(path, []byte(flat), 0o644))

	s := New(path, log.NewNop())
	require.NoError(t, s.Increment("u1", "alice", StatImagesGenerated, "srv1"))

	doc := readDoc(t, path)
	rec := doc["u1"]
	assert.Equal(t, 8, rec.Servers[GlobalBucket].ImagesGenerated)
	assert.Equal(t, 3, rec.Servers[GlobalBucket].ChatResponses)
	assert.Equal(t, 1, rec.Servers[GlobalBucket].Mentions)
	assert.Equal(t, 1, rec.Servers["srv1"].ImagesGenerated)
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user_stats.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := New(path, log.NewNop())
	require.NoError(t, s.Increment("u1", "alice", StatImagesGenerated, ""))

	doc := readDoc(t, path)
	assert.Equal(t, 1, doc["u1"].Servers[GlobalBucket].ImagesGenerated)
}

func TestTop(t *testing.T) {
	s := newStore(t)

	for range 3 {
		require.NoError(t, s.Increment("u1", "alice", StatImagesGenerated, "srv1"))
	}
	require.NoError(t, s.Increment("u2", "bob", StatImagesGenerated, "srv1"))
	require.NoError(t, s.Increment("u3", "carol", StatChatResponses, "srv2"))

	leaders, err := s.Top("srv1", StatImagesGenerated, 5)
	require.NoError(t, err)

	require.Len(t, leaders, 2)
	assert.Equal(t, "alice", leaders[0].Username)
	assert.Equal(t, 3, leaders[0].ImagesGenerated)
	assert.Equal(t, "bob", leaders[1].Username)

	// carol has no srv1 bucket.
	for _, l := range leaders {
		assert.NotEqual(t, "carol", l.Username)
	}
}

func TestTopRanksBySelectedStat(t *testing.T) {
	s := newStore(t)

	// alice leads images, bob leads chats.
	for range 3 {
		require.NoError(t, s.Increment("u1", "alice", StatImagesGenerated, "srv"))
	}
	require.NoError(t, s.Increment("u1", "alice", StatChatResponses, "srv"))
	require.NoError(t, s.Increment("u2", "bob", StatImagesGenerated, "srv"))
	for range 4 {
		require.NoError(t, s.Increment("u2", "bob", StatChatResponses, "srv"))
	}
	require.NoError(t, s.Increment("u3", "carol", StatImagesGenerated, "srv"))

	byImages, err := s.Top("srv", StatImagesGenerated, 5)
	require.NoError(t, err)
	assert.Equal(t, "alice", byImages[0].Username)

	byChats, err := s.Top("srv", StatChatResponses, 5)
	require.NoError(t, err)
	require.Len(t, byChats, 2, "carol has no chats and is skipped")
	assert.Equal(t, "bob", byChats[0].Username)
	assert.Equal(t, 4, byChats[0].ChatResponses)
	assert.Equal(t, "alice", byChats[1].Username)
}

func TestTopTruncates(t *testing.T) {
	s := newStore(t)
	for _, u := range []string{"a", "b", "c"} {
		require.NoError(t, s.Increment(u, u, StatImagesGenerated, "srv"))
	}

	leaders, err := s.Top("srv", StatImagesGenerated, 2)
	require.NoError(t, err)
	assert.Len(t, leaders, 2)
}

func TestTopMissingFile(t *testing.T) {
	s := newStore(t)
	leaders, err := s.Top("srv", StatImagesGenerated, 5)
	require.NoError(t, err)
	assert.Empty(t, leaders)
}

func readDoc(t *testing.T, path string) map[string]Record {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]Record
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}
