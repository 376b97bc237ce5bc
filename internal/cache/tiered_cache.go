package cache

import (
	"context"

	"blinkdb/internal/logging"
)

// DiskWriter is the disk-tier dependency TieredCache needs: writing the
// value evicted from Warm when a cascade reaches the cold tier. Accepting
// an interface here (rather than importing the diskstore package directly)
// keeps TieredCache testable without a filesystem and keeps the dependency
// direction pointing away from the policy engine.
type DiskWriter interface {
	Put(ctx context.Context, key string, value []byte)
}

// TieredCache is the central policy engine: two LruLevels, Hot and Warm,
// plus per-key access counters scoped to whichever level currently holds
// the key. It never talks to disk directly except through DiskWriter when
// a Warm eviction cascades to the cold tier.
type TieredCache struct {
	hot                *LruLevel
	warm               *LruLevel
	accessCount        map[string]uint32
	promotionThreshold uint32
	disk               DiskWriter
}

// New constructs a TieredCache with the given hot/warm capacities and
// promotion threshold. disk may be nil in tests that never force a
// hot-evict cascade past Warm capacity.
func New(hotCapacity, warmCapacity int, promotionThreshold uint32, disk DiskWriter) *TieredCache {
	return &TieredCache{
		hot:                NewLruLevel(hotCapacity),
		warm:               NewLruLevel(warmCapacity),
		accessCount:        make(map[string]uint32),
		promotionThreshold: promotionThreshold,
		disk:               disk,
	}
}

// Get implements the spec's three-branch get: Hot hit just touches and
// counts; Warm hit touches, counts, and promotes to Hot once the
// promotion threshold is reached; a miss on both returns false so the
// caller (the BlinkDB orchestrator) can consult DiskStore.
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := c.hot.Get(key); ok {
		c.hot.Touch(key)
		c.accessCount[key]++
		return value, true
	}

	if value, ok := c.warm.Get(key); ok {
		c.warm.Touch(key)
		c.accessCount[key]++

		if c.accessCount[key] >= c.promotionThreshold {
			c.warm.Remove(key)
			if c.hot.Full() {
				c.hotEvict(ctx)
			}
			c.hot.Insert(key, value)
			c.accessCount[key] = 1
			logging.Debug(ctx, logging.ComponentCache, logging.ActionPromote, "promoted key from warm to hot", map[string]interface{}{"key": key})
		}

		return value, true
	}

	return nil, false
}

// Set implements the spec's set policy: a key resident in Warm is lifted
// out (its counter cleared) and re-inserted fresh into Hot; a key already
// in Hot is updated in place; otherwise Hot gains a new front entry,
// evicting its LRU victim first if full.
func (c *TieredCache) Set(ctx context.Context, key string, value []byte) {
	if c.warm.Contains(key) {
		c.warm.Remove(key)
		delete(c.accessCount, key)
	} else if c.hot.Contains(key) {
		c.hot.Replace(key, value)
		c.hot.Touch(key)
		c.accessCount[key] = 1
		return
	}

	if c.hot.Full() {
		c.hotEvict(ctx)
	}
	c.hot.Insert(key, value)
	c.accessCount[key] = 1
}

// Remove deletes key from whichever level holds it, clearing its counter.
// It reports whether anything was actually removed.
func (c *TieredCache) Remove(key string) bool {
	if _, ok := c.hot.Remove(key); ok {
		delete(c.accessCount, key)
		return true
	}
	if _, ok := c.warm.Remove(key); ok {
		delete(c.accessCount, key)
		return true
	}
	return false
}

// hotEvict pops the LRU entry from Hot and pushes it to the front of Warm,
// cascading exactly one step further to disk if Warm is itself full. A
// single Set or promotion can therefore cause at most one disk write.
func (c *TieredCache) hotEvict(ctx context.Context) {
	k, v, ok := c.hot.EvictLRU()
	if !ok {
		return
	}

	if c.warm.Full() {
		if k2, v2, ok2 := c.warm.EvictLRU(); ok2 {
			delete(c.accessCount, k2)
			if c.disk != nil {
				c.disk.Put(ctx, k2, v2)
			}
			logging.Debug(ctx, logging.ComponentCache, logging.ActionEvict, "evicted key from warm to disk", map[string]interface{}{"key": k2})
		}
	}

	c.warm.Insert(k, v)
	c.accessCount[k] = 1
}

// HotLen and WarmLen expose current occupancy, mainly for tests asserting
// on the concrete eviction-chain scenarios.
func (c *TieredCache) HotLen() int  { return c.hot.Len() }
func (c *TieredCache) WarmLen() int { return c.warm.Len() }

// HotKeys and WarmKeys expose recency order, most-recent first, for tests.
func (c *TieredCache) HotKeys() []string  { return c.hot.Keys() }
func (c *TieredCache) WarmKeys() []string { return c.warm.Keys() }
