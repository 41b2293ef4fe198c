package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	userID   string
	cachedAt time.Time
}

// CachingResolver remembers successful resolutions for a TTL. Failures are
// never cached. Credentials are keyed by their SHA-256 digest.
type CachingResolver struct {
	next  Resolver
	clock Clock
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCachingResolver(next Resolver, ttl time.Duration) *CachingResolver {
	return NewCachingResolverWithClock(next, realClock{}, ttl)
}

// NewCachingResolverWithClock creates a CachingResolver with a custom clock
// (for testing).
func NewCachingResolverWithClock(next Resolver, clock Clock, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		next:    next,
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachingResolver) Resolve(ctx context.Context, credential string) (string, error) {
	if credential == "" {
		return "", ErrUnauthenticated
	}
	key := digest(credential)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.clock.Now().Before(e.cachedAt.Add(c.ttl)) {
		return e.userID, nil
	}

	id, err := c.next.Resolve(ctx, credential)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for k, old := range c.entries {
		if !now.Before(old.cachedAt.Add(c.ttl)) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{userID: id, cachedAt: now}
	return id, nil
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
