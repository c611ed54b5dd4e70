package cache

import (
	"testing"
	"time"
)

func TestGetAfterPutWithinTTL(t *testing.T) {
	c := New[string, string](time.Hour)
	now := time.Now()

	c.Put("https://example.com", "summary", now)

	got, ok := c.Get("https://example.com", now.Add(30*time.Minute))
	if !ok {
		t.Fatal("expected hit within TTL")
	}
	if got != "summary" {
		t.Errorf("Get = %q, want %q", got, "summary")
	}
}

func TestGetAfterTTLBehavesAsMiss(t *testing.T) {
	c := New[string, string](time.Hour)
	now := time.Now()

	c.Put("k", "v", now)

	if _, ok := c.Get("k", now.Add(time.Hour)); ok {
		t.Error("expected miss at exactly TTL age")
	}
	if _, ok := c.Get("k", now.Add(2*time.Hour)); ok {
		t.Error("expected miss past TTL")
	}
	// Lazy expiry: the entry is still physically present until purged.
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1 (expired entries stay until purge)", c.Len())
	}
}

func TestGetMissingKey(t *testing.T) {
	c := New[string, int](time.Minute)
	if _, ok := c.Get("absent", time.Now()); ok {
		t.Error("expected miss for missing key")
	}
}

func TestPutReplacesAndRefreshes(t *testing.T) {
	c := New[string, string](time.Hour)
	now := time.Now()

	c.Put("k", "old", now)
	c.Put("k", "new", now.Add(50*time.Minute))

	got, ok := c.Get("k", now.Add(90*time.Minute))
	if !ok {
		t.Fatal("expected hit: second Put refreshed the entry")
	}
	if got != "new" {
		t.Errorf("Get = %q, want %q", got, "new")
	}
}

func TestPurgeExpiredRemovesOnlyStale(t *testing.T) {
	c := New[string, string](time.Hour)
	now := time.Now()

	c.Put("old", "a", now.Add(-2*time.Hour))
	c.Put("boundary", "b", now.Add(-time.Hour))
	c.Put("fresh", "c", now.Add(-time.Minute))

	removed := c.PurgeExpired(now)
	if removed != 2 {
		t.Errorf("PurgeExpired removed %d entries, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d after purge, want 1", c.Len())
	}
	if _, ok := c.Get("fresh", now); !ok {
		t.Error("fresh entry removed by purge")
	}
}

func TestNegativeResultCaching(t *testing.T) {
	// A confirmed fetch failure is stored as an empty summary so the
	// caller remembers not to retry for the TTL.
	c := New[string, string](time.Hour)
	now := time.Now()

	c.Put("https://dead.example", "", now)

	got, ok := c.Get("https://dead.example", now.Add(time.Minute))
	if !ok {
		t.Fatal("expected hit for cached failure")
	}
	if got != "" {
		t.Errorf("Get = %q, want empty summary", got)
	}
}
