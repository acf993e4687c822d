package snapshot

import (
	"encoding/json"
	"sync"
	"time"
)

// Cache is the latest-known snapshot, guarded for concurrent reads from
// HTTP handlers while the distributor's run loop performs merges.
type Cache struct {
	mu         sync.RWMutex
	data       Snapshot
	lastUpdate time.Time
}

func NewCache() *Cache {
	return &Cache{}
}

// Merge folds update into the cache. A key is replaced only when the
// incoming value passes Acceptable; keys absent from update are untouched.
// Returns the number of keys that were replaced.
func (c *Cache) Merge(update Snapshot) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	accepted := 0
	for k, v := range update {
		if !Acceptable(v) {
			continue
		}
		if c.data == nil {
			c.data = make(Snapshot)
		}
		c.data[k] = v
		accepted++
	}

	// Real data ends a degraded period: the markers left by an earlier
	// error snapshot are cleared so later snapshots read as healthy again.
	// An update carrying its own status key keeps it.
	if accepted > 0 && !update.IsError() {
		if _, ok := update["status"]; !ok && c.data.IsError() {
			delete(c.data, "status")
			delete(c.data, "error")
		}
	}

	if ts, ok := update["timestamp"]; ok {
		var ms int64
		if err := json.Unmarshal(ts, &ms); err == nil && ms > 0 {
			c.lastUpdate = time.UnixMilli(ms)
		}
	}

	return accepted
}

// Snapshot returns a shallow copy of the full cache, or nil if no update
// has ever been accepted. Callers distinguish "no data yet" (nil) from
// "data present but degraded" (error-shaped snapshot).
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Clone()
}

// Domain returns the cached value for a single domain key.
func (c *Cache) Domain(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// LastUpdate returns when the backend last stamped an accepted update, or
// the zero time if no update carried a timestamp.
func (c *Cache) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}
