package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache wraps a Provider with a short TTL over ListEvents. A scheduling run
// creates one per request: freshness rechecks around candidate slots would
// otherwise turn into one provider round-trip per attempt.
//
// CreateEvent passes through untouched; callers invalidate after commits.
type Cache struct {
	provider Provider
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	events  []Event
	expires time.Time
}

// NewCache wraps provider. ttl <= 0 means 60s.
func NewCache(provider Provider, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{provider: provider, ttl: ttl, entries: map[string]cacheEntry{}}
}

func cacheKey(userID string, start, end time.Time) string {
	return fmt.Sprintf("%s|%d|%d", userID, start.Unix(), end.Unix())
}

func (c *Cache) ListEvents(ctx context.Context, userID string, start, end time.Time) ([]Event, error) {
	key := cacheKey(userID, start, end)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Now().Before(e.expires) {
		events := e.events
		c.mu.Unlock()
		return events, nil
	}
	c.mu.Unlock()

	events, err := c.provider.ListEvents(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{events: events, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return events, nil
}

func (c *Cache) CreateEvent(ctx context.Context, userID string, d EventDraft) (EventRef, error) {
	return c.provider.CreateEvent(ctx, userID, d)
}

// Invalidate drops every cached window for the user. Called after an event is
// created so later rechecks observe it.
func (c *Cache) Invalidate(userID string) {
	prefix := userID + "|"
	c.mu.Lock()
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
