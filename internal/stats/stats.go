// Package stats persists per-user usage counters in a single JSON
// document, read and rewritten in full on every update.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/ladlebot/ladle/internal/log"
)

// GlobalBucket aggregates across all servers; it is always incremented.
const GlobalBucket = "global"

// Stat names.
const (
	StatImagesGenerated = "images_generated"
	StatChatResponses   = "chat_responses"
	StatMentions        = "mentions"
)

// Counters is one bucket of counts.
type Counters struct {
	ImagesGenerated int `json:"images_generated"`
	ChatResponses   int `json:"chat_responses"`
	Mentions        int `json:"mentions"`
}

// Record is one user's entry in the document.
type Record struct {
	Username string              `json:"username"`
	Servers  map[string]Counters `json:"servers"`
}

// Store is the JSON-backed statistics store. A process mutex
// serializes callers and a file lock guards against a second process
// touching the same document.
type Store struct {
	mu     sync.Mutex
	path   string
	flock  *flock.Flock
	logger log.Logger
}

// New creates a store for the document at path. The file is created on
// first write.
func New(path string, logger log.Logger) *Store {
	return &Store{
		path:   path,
		flock:  flock.New(path + ".lock"),
		logger: logger,
	}
}

// Increment bumps stat for userID in the global bucket, and in the
// serverID bucket as well when serverID is non-empty. Missing records
// and buckets are created zero-initialized. The whole read-modify-write
// cycle happens under one lock.
func (s *Store) Increment(userID, username, stat, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flock.Lock(); err != nil {
		return fmt.Errorf("lock stats file: %w", err)
	}
	defer s.flock.Unlock()

	doc := s.read()

	rec, ok := doc[userID]
	if !ok {
		rec = Record{Servers: make(map[string]Counters)}
	}
	rec.Username = username
	if rec.Servers == nil {
		rec.Servers = make(map[string]Counters)
	}

	bump(rec.Servers, GlobalBucket, stat)
	if serverID != "" {
		bump(rec.Servers, serverID, stat)
	}
	doc[userID] = rec

	return s.write(doc)
}

// Top returns the n users with the highest count for stat in
// serverID's bucket, ordered descending. Users without that bucket, or
// with a zero count, are skipped.
func (s *Store) Top(serverID, stat string, n int) ([]Leader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flock.RLock(); err != nil {
		return nil, fmt.Errorf("lock stats file: %w", err)
	}
	defer s.flock.Unlock()

	doc := s.read()

	var leaders []Leader
	for id, rec := range doc {
		c, ok := rec.Servers[serverID]
		if !ok || counterValue(c, stat) == 0 {
			continue
		}
		leaders = append(leaders, Leader{
			UserID:   id,
			Username: rec.Username,
			Counters: c,
		})
	}
	sort.Slice(leaders, func(i, j int) bool {
		vi, vj := counterValue(leaders[i].Counters, stat), counterValue(leaders[j].Counters, stat)
		if vi != vj {
			return vi > vj
		}
		return leaders[i].Username < leaders[j].Username
	})
	if len(leaders) > n {
		leaders = leaders[:n]
	}
	return leaders, nil
}

func counterValue(c Counters, stat string) int {
	switch stat {
	case StatChatResponses:
		return c.ChatResponses
	case StatMentions:
		return c.Mentions
	default:
		return c.ImagesGenerated
	}
}

// Leader is one leaderboard row.
type Leader struct {
	UserID   string
	Username string
	Counters
}

// read loads the document. A missing file is an empty store; a corrupt
// one is logged and treated as empty. Flat-format records from the old
// layout (counters at the top level, no servers key) are migrated into
// a global bucket.
func (s *Store) read() map[string]Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("stats file unreadable, starting empty", "path", s.path, "error", err)
		}
		return make(map[string]Record)
	}

	var doc map[string]Record
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("stats file corrupt, starting empty", "path", s.path, "error", err)
		return make(map[string]Record)
	}

	for id, rec := range doc {
		if rec.Servers == nil {
			doc[id] = migrateFlat(data, id, rec)
		}
	}
	return doc
}

// migrateFlat recovers counters written by the old flat layout, where
// the record carried counts directly instead of a servers map.
func migrateFlat(data []byte, id string, rec Record) Record {
	var flat map[string]struct {
		Username        string `json:"username"`
		ImagesGenerated int    `json:"images_generated"`
		ChatResponses   int    `json:"chat_responses"`
		Mentions        int    `json:"mentions"`
	}
	rec.Servers = make(map[string]Counters)
	if err := json.Unmarshal(data, &flat); err == nil {
		if f, ok := flat[id]; ok {
			rec.Servers[GlobalBucket] = Counters{
				ImagesGenerated: f.ImagesGenerated,
				ChatResponses:   f.ChatResponses,
				Mentions:        f.Mentions,
			}
		}
	}
	return rec
}

func (s *Store) write(doc map[string]Record) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	// Write-then-rename so a crash mid-write cannot corrupt the
	// document.
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace stats: %w", err)
	}
	return nil
}

func bump(servers map[string]Counters, bucket, stat string) {
	c := servers[bucket]
	switch stat {
	case StatImagesGenerated:
		c.ImagesGenerated++
	case StatChatResponses:
		c.ChatResponses++
	case StatMentions:
		c.Mentions++
	}
	servers[bucket] = c
}
