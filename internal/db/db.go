// Package db wires TieredCache and DiskStore into the SET/GET/DEL policy
// BlinkDB exposes to clients, enforcing the membership-exclusivity
// invariant: a key lives in the cache or on disk, never both.
package db

import (
	"context"

	"blinkdb/internal/cache"
	"blinkdb/internal/diskstore"
)

// DB is the orchestrator around a TieredCache and a DiskStore. It owns no
// synchronization of its own: like the reactor above it, it is reached
// exclusively from the single reactor goroutine.
type DB struct {
	cache *cache.TieredCache
	disk  *diskstore.Store

	hits      uint64
	misses    uint64
	diskReads uint64
}

// New constructs a DB over the given disk store, building its TieredCache
// from the hot/warm capacities and promotion threshold.
func New(hotCapacity, warmCapacity int, promotionThreshold uint32, disk *diskstore.Store) *DB {
	return &DB{
		cache: cache.New(hotCapacity, warmCapacity, promotionThreshold, disk),
		disk:  disk,
	}
}

// Set implements SET(k, v): any prior on-disk copy is removed before the
// cache absorbs the write, preserving disjoint residency.
func (d *DB) Set(ctx context.Context, key string, value []byte) {
	if d.disk.Contains(key) {
		d.disk.Remove(key)
	}
	d.cache.Set(ctx, key, value)
}

// Get implements GET(k): a cache hit returns directly; a cache miss falls
// through to disk, and a disk hit is promoted back into Hot and removed
// from disk so the key is never resident in both tiers at once.
func (d *DB) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := d.cache.Get(ctx, key); ok {
		d.hits++
		return value, true
	}

	if d.disk.Contains(key) {
		value, ok := d.disk.Get(ctx, key)
		if !ok {
			d.misses++
			return nil, false
		}
		d.diskReads++
		d.disk.Remove(key)
		d.cache.Set(ctx, key, value)
		return value, true
	}

	d.misses++
	return nil, false
}

// Del implements DEL(k): removes the key from whichever tier holds it and
// reports whether anything was actually removed.
func (d *DB) Del(key string) bool {
	removedFromCache := d.cache.Remove(key)
	removedFromDisk := false
	if d.disk.Contains(key) {
		d.disk.Remove(key)
		removedFromDisk = true
	}
	return removedFromCache || removedFromDisk
}

// Stats reports cumulative hit/miss/disk-read counters, purely for
// observability; nothing in the RESP command surface exposes these.
type Stats struct {
	Hits      uint64
	Misses    uint64
	DiskReads uint64
	DiskKeys  int
}

// Stats returns a snapshot of the accumulated counters.
func (d *DB) Stats() Stats {
	return Stats{
		Hits:      d.hits,
		Misses:    d.misses,
		DiskReads: d.diskReads,
		DiskKeys:  d.disk.Len(),
	}
}

// Close flushes the disk store's index to disk.
func (d *DB) Close() error {
	return d.disk.Close()
}
