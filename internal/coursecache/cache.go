package coursecache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 15 * time.Minute

// Entry is the formatted course context and the moment it was fetched.
type Entry struct {
	Text     string
	CachedAt time.Time
}

// Loader fetches fresh course context on a miss.
type Loader func(ctx context.Context, courseID int64) (string, error)

// Cache holds formatted course contexts for a fixed time. It is shared by
// every user, so it is keyed by course only.
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[int64]Entry
	group   singleflight.Group
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) fresh(e Entry) bool {
	return c.now().Sub(e.CachedAt) < c.ttl
}

// Get returns the cached text when present and not older than the TTL.
func (c *Cache) Get(courseID int64) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[courseID]
	c.mu.RUnlock()
	if !ok || !c.fresh(e) {
		return "", false
	}
	return e.Text, true
}

func (c *Cache) Set(courseID int64, text string) {
	c.mu.Lock()
	c.entries[courseID] = Entry{Text: text, CachedAt: c.now()}
	c.mu.Unlock()
}

// GetOrLoad serves a fresh entry or calls load once per course, however many
// callers miss at the same time. Failed loads are not cached.
func (c *Cache) GetOrLoad(ctx context.Context, courseID int64, load Loader) (string, error) {
	if text, ok := c.Get(courseID); ok {
		return text, nil
	}
	v, err, _ := c.group.Do(strconv.FormatInt(courseID, 10), func() (interface{}, error) {
		if text, ok := c.Get(courseID); ok {
			return text, nil
		}
		log.Printf("📚 course %d context cache miss, loading", courseID)
		text, err := load(ctx, courseID)
		if err != nil {
			return "", err
		}
		c.Set(courseID, text)
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("load course %d context: %w", courseID, err)
	}
	return v.(string), nil
}

// Purge drops expired entries and reports how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		if !c.fresh(e) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
