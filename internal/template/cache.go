package template

import (
	"sync"
	"time"

	"github.com/notifyhq/notification-engine/internal/models"
)

// CachedRegistry wraps a Registry with a TTL cache of resolved templates.
// The cache is an optimization only: hits and misses return structurally
// identical results.
type CachedRegistry struct {
	inner Registry
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	template  models.Template
	expiresAt time.Time
}

func NewCachedRegistry(inner Registry, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachedRegistry) Get(id string) (models.Template, error) {
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.entries[id]; ok && now.Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.template, nil
	}
	c.mu.Unlock()

	t, err := c.inner.Get(id)
	if err != nil {
		return models.Template{}, err
	}

	c.mu.Lock()
	c.entries[id] = cacheEntry{template: t, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return t, nil
}
