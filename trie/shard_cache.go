package trie

import (
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/fastcache"
)

// CacheStats holds shard cache performance counters.
type CacheStats struct {
	Hits       uint64
	Misses     uint64
	EntryCount uint64
	SizeBytes  uint64
}

// ShardCache is the bounded, hot cache of trie-node bytes keyed by
// 32-byte content hash that sits in front of the staging area (§4.1/§4.3).
// It never blocks on I/O: a miss here always falls through to the
// staging area, never to a retry loop.
//
// Backed by fastcache, a sharded, mostly lock-free byte cache, rather than
// the hand-rolled doubly-linked-list LRU this package used to carry —
// same hit/miss bookkeeping discipline, different eviction engine.
// fastcache has no external lock of its own, so ShardCache carries one:
// callers that need to hold the cache's miss-check and a subsequent
// staging-area reservation atomically (the S-before-P rule of §4.1) do so
// by wrapping both in Lock/Unlock rather than relying on fastcache's
// internal, non-exposable locking.
type ShardCache struct {
	cache *fastcache.Cache
	mu    sync.Mutex

	// recorder is nil in production; tests asserting S-before-P lock
	// ordering install one to observe Lock/Unlock calls.
	recorder *lockOrderRecorder

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewShardCache creates a shard cache bounded at maxBytes total size.
func NewShardCache(maxBytes int) *ShardCache {
	if maxBytes <= 0 {
		maxBytes = 32 * 1024 * 1024
	}
	return &ShardCache{cache: fastcache.New(maxBytes)}
}

// Lock acquires the shard cache's S lock. Callers must hold it across any
// sequence that needs to be atomic with respect to a concurrent promotion
// into this cache, per the S-before-P ordering rule of §4.1 — most
// notably a miss-check immediately followed by a staging-area reservation.
func (c *ShardCache) Lock() {
	c.mu.Lock()
	c.recorder.record("S-lock")
}

// Unlock releases the S lock acquired by Lock.
func (c *ShardCache) Unlock() {
	c.recorder.record("S-unlock")
	c.mu.Unlock()
}

// Get retrieves a cached trie node by hash.
func (c *ShardCache) Get(hash Hash) ([]byte, bool) {
	data, ok := c.cache.HasGet(nil, hash[:])
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return data, true
}

// Put stores a trie node's RLP-encoded bytes keyed by its hash.
func (c *ShardCache) Put(hash Hash, data []byte) {
	c.cache.Set(hash[:], data)
}

// Del removes a cached entry.
func (c *ShardCache) Del(hash Hash) {
	c.cache.Del(hash[:])
}

// Reset clears the cache and its statistics.
func (c *ShardCache) Reset() {
	c.cache.Reset()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns a snapshot of cache performance statistics.
func (c *ShardCache) Stats() CacheStats {
	var s fastcache.Stats
	c.cache.UpdateStats(&s)
	return CacheStats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		EntryCount: s.EntriesCount,
		SizeBytes:  s.BytesSize,
	}
}

// HitRate returns the cache hit rate as a float64 in [0, 1].
func (c *ShardCache) HitRate() float64 {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
