// cache.go -- Process-local TTL cache in front of the short URL records.
//
// Entries are per process. Other instances only see a change once their own
// entry ages out, so the TTL bounds how stale a node can be.
package shorturl

import (
	"sync"
	"time"

	"github.com/MGallo-Code/dirshare/internal/store"
)

// DefaultCacheTTL is how long a loaded record is trusted without re-reading storage.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	rec      store.ShortURL
	storedAt time.Time
}

// Cache maps short ids to records and original URLs to short ids.
// A non-positive TTL disables it. Safe for concurrent use.
type Cache struct {
	ttl time.Duration

	mu    sync.Mutex
	byID  map[string]cacheEntry
	byURL map[string]string
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:   ttl,
		byID:  make(map[string]cacheEntry),
		byURL: make(map[string]string),
	}
}

func (c *Cache) fresh(e cacheEntry, now time.Time) bool {
	return now.Sub(e.storedAt) < c.ttl
}

// Get returns a copy of the cached record for id if it has not aged out.
func (c *Cache) Get(id string, now time.Time) (store.ShortURL, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok || !c.fresh(e, now) {
		return store.ShortURL{}, false
	}
	return e.rec, true
}

// LookupURL returns the short id cached for originalURL, skipping expired records.
func (c *Cache) LookupURL(originalURL string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byURL[originalURL]
	if !ok {
		return "", false
	}
	e, ok := c.byID[id]
	if !ok || !c.fresh(e, now) || e.rec.IsExpired || e.rec.OriginalURL != originalURL {
		return "", false
	}
	return id, true
}

// Put stores rec as loaded at now.
func (c *Cache) Put(rec store.ShortURL, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[rec.ShortID] = cacheEntry{rec: rec, storedAt: now}
	c.byURL[rec.OriginalURL] = rec.ShortID
}

// Touch replaces a cached record without extending its lifetime.
// No-op when id is not cached.
func (c *Cache) Touch(rec store.ShortURL) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[rec.ShortID]
	if !ok {
		return
	}
	e.rec = rec
	c.byID[rec.ShortID] = e
}

// Delete drops id and its reverse mapping.
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(id)
}

func (c *Cache) deleteLocked(id string) {
	e, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	if c.byURL[e.rec.OriginalURL] == id {
		delete(c.byURL, e.rec.OriginalURL)
	}
}

// Prune evicts aged-out entries and returns how many were dropped.
func (c *Cache) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.byID {
		if !c.fresh(e, now) {
			c.deleteLocked(id)
			n++
		}
	}
	return n
}

// Len returns the number of cached records, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
