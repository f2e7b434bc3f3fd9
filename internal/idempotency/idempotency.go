// Package idempotency implements the process-local response cache applied
// to mutating requests: a cache hit replays the previously stored status and
// body rather than re-executing the operation. The cache is deliberately
// process-local and mutex-guarded rather than Redis-backed — a client retry
// landing on a different process re-executes the operation, which is
// tolerable because the underlying operations are themselves safe to retry
// through the version/state-machine invariants enforced further down the
// stack.
package idempotency

import (
	"net/http"
	"sync"
	"time"
)

// entry is one memoized response.
type entry struct {
	status    int
	header    http.Header
	body      []byte
	expiresAt time.Time
}

// Cache memoizes responses by (method, path, idempotency-key). Entries are
// purged lazily on access and on insert; there is no background sweep.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
}

// New creates a cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// Key builds the cache key for a (method, path, idempotency-key) triple.
// path must already have its query string stripped.
func Key(method, path, idempotencyKey string) string {
	return method + "\x00" + path + "\x00" + idempotencyKey
}

// Get returns the memoized response for key, if present and unexpired.
func (c *Cache) Get(key string) (status int, header http.Header, body []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		return 0, nil, nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return 0, nil, nil, false
	}
	return e.status, e.header.Clone(), append([]byte(nil), e.body...), true
}

// Put stores a response under key. 5xx responses must never be cached,
// per the error-handling design; callers are expected to check the status
// themselves, but Put refuses to store one as a defense in depth.
func (c *Cache) Put(key string, status int, header http.Header, body []byte) {
	if status >= 500 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked()
	c.entries[key] = entry{
		status:    status,
		header:    header.Clone(),
		body:      append([]byte(nil), body...),
		expiresAt: time.Now().Add(c.ttl),
	}
}

// purgeExpiredLocked removes expired entries. Called opportunistically on
// insert so the map doesn't grow unbounded between accesses to any given
// key; callers must hold c.mu.
func (c *Cache) purgeExpiredLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
