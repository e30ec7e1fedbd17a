package search

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// credentialCache holds one short-lived credential, refreshing it lazily on
// first use and after the TTL. Concurrent refreshes share one fetch.
type credentialCache struct {
	fetch func(ctx context.Context) (string, error)
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	value   string
	expires time.Time

	group singleflight.Group
}

func newCredentialCache(ttl time.Duration, fetch func(ctx context.Context) (string, error)) *credentialCache {
	return &credentialCache{
		fetch: fetch,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the cached credential or fetches a fresh one.
func (c *credentialCache) Get(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.value != "" && c.now().Before(c.expires) {
		v := c.value
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("credential", func() (any, error) {
		value, err := c.fetch(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.value = value
		c.expires = c.now().Add(c.ttl)
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached credential so the next Get refetches it.
func (c *credentialCache) Invalidate() {
	c.mu.Lock()
	c.value = ""
	c.expires = time.Time{}
	c.mu.Unlock()
}
