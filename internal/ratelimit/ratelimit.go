// Package ratelimit implements per-user sliding-window admission control
// for interactive commands and UI controls.
//
// Every interactive entry point calls Admit before doing any work; a
// rejected interaction is answered inline and never reaches the job
// queue. Owners and holders of an exempt role are admitted without being
// recorded.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/ladlebot/ladle/internal/log"
)

const (
	// window is the trailing interval interactions are counted over.
	window = 60 * time.Second

	// cleanupInterval bounds how often stale user buckets are swept.
	cleanupInterval = 5 * time.Minute
)

// Decision is the outcome of an admission check. Rejection is a normal
// outcome, not an error; Limit is carried for user-facing messaging.
type Decision struct {
	Allowed bool
	Limit   int
}

// Limiter tracks interaction timestamps per user over a sliding window.
// Safe for concurrent use; the whole check-and-record runs under one
// mutex so concurrent callers observe a consistent window.
type Limiter struct {
	mu          sync.Mutex
	maxPerMin   int
	owners      map[string]struct{}
	exemptRoles map[string]struct{}
	hits        map[string][]time.Time
	lastCleanup time.Time
	logger      log.Logger
}

// New creates a limiter admitting at most maxPerMinute interactions per
// user per trailing 60 seconds. Role names are matched case-insensitively.
func New(maxPerMinute int, ownerIDs, exemptRoles []string, logger log.Logger) *Limiter {
	owners := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		if id = strings.TrimSpace(id); id != "" {
			owners[id] = struct{}{}
		}
	}
	roles := make(map[string]struct{}, len(exemptRoles))
	for _, r := range exemptRoles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			roles[r] = struct{}{}
		}
	}
	return &Limiter{
		maxPerMin:   maxPerMinute,
		owners:      owners,
		exemptRoles: roles,
		hits:        make(map[string][]time.Time),
		lastCleanup: time.Now(),
		logger:      logger,
	}
}

// Admit decides whether the user's interaction proceeds.
//
// The user's timestamp list is pruned to the trailing window first. An
// owner or a holder of an exempt role is admitted unconditionally and not
// recorded. Otherwise the interaction is admitted and recorded iff the
// pruned count is below the limit; a rejected interaction is not
// recorded either.
func (l *Limiter) Admit(userID string, now time.Time, roles []string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) > cleanupInterval {
		l.cleanupLocked(now)
	}

	recent := prune(l.hits[userID], now)

	if l.exempt(userID, roles) {
		// Keep the pruned list so exempt users don't accumulate stale
		// timestamps from before a role change.
		if len(recent) == 0 {
			delete(l.hits, userID)
		} else {
			l.hits[userID] = recent
		}
		return Decision{Allowed: true, Limit: l.maxPerMin}
	}

	if len(recent) >= l.maxPerMin {
		l.hits[userID] = recent
		l.logger.Warn("interaction limit exceeded", "user_id", userID, "limit", l.maxPerMin)
		return Decision{Allowed: false, Limit: l.maxPerMin}
	}

	l.hits[userID] = append(recent, now)
	return Decision{Allowed: true, Limit: l.maxPerMin}
}

func (l *Limiter) exempt(userID string, roles []string) bool {
	if _, ok := l.owners[userID]; ok {
		return true
	}
	for _, r := range roles {
		if _, ok := l.exemptRoles[strings.ToLower(r)]; ok {
			return true
		}
	}
	return false
}

// cleanupLocked drops users whose whole window has aged out.
func (l *Limiter) cleanupLocked(now time.Time) {
	for id, ts := range l.hits {
		if len(prune(ts, now)) == 0 {
			delete(l.hits, id)
		}
	}
	l.lastCleanup = now
}

// prune returns the timestamps still inside the trailing window.
func prune(ts []time.Time, now time.Time) []time.Time {
	kept := ts[:0:0]
	for _, t := range ts {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	return kept
}
