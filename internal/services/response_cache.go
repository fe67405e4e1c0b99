package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// ResponseCache is a short-TTL, content-addressed cache of assembled
// prompt -> completion. It is a cost/latency optimization only: losing
// it never loses correctness, a miss behaves like a first run.
// Constructed once per process and injected into the chat pipeline.
type ResponseCache struct {
	store          *cache.Cache
	sweepThreshold int
}

// NewResponseCache creates a response cache with the given TTL
func NewResponseCache(ttl time.Duration, sweepThreshold int) *ResponseCache {
	// Lazy expiry on read; the periodic janitor is disabled because
	// Sweep runs on demand when the map grows past the threshold.
	return &ResponseCache{
		store:          cache.New(ttl, cache.NoExpiration),
		sweepThreshold: sweepThreshold,
	}
}

// Key builds a content-hash key from user identity, message, and a
// digest of the assembled context.
func (c *ResponseCache) Key(userID int64, message, contextDigest string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%s|%s", userID, message, contextDigest))
	return hex.EncodeToString(sum[:])
}

// Get returns a cached response, if present and unexpired
func (c *ResponseCache) Get(key string) (string, bool) {
	if cached, found := c.store.Get(key); found {
		if response, ok := cached.(string); ok {
			return response, true
		}
		log.Printf("⚠️ [CACHE] Invalid cached value type for key %s", key[:12])
	}
	return "", false
}

// Set stores a response under the default TTL and sweeps expired
// entries when the map has grown past the threshold.
func (c *ResponseCache) Set(key, response string) {
	c.store.Set(key, response, cache.DefaultExpiration)
	if c.store.ItemCount() > c.sweepThreshold {
		c.Sweep()
	}
}

// Sweep removes expired entries
func (c *ResponseCache) Sweep() {
	before := c.store.ItemCount()
	c.store.DeleteExpired()
	log.Printf("🧹 [CACHE] Swept response cache (%d -> %d entries)", before, c.store.ItemCount())
}

// Len returns the current entry count (expired entries included until
// the next sweep)
func (c *ResponseCache) Len() int {
	return c.store.ItemCount()
}
