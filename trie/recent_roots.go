package trie

import lru "github.com/hashicorp/golang-lru/v2"

// RecentRootsCache remembers the most recently prefetched trie roots so a
// caller (typically cmd/prefetchd) can skip re-walking a root it just
// finished prefetching, e.g. because two successive blocks share most of
// their state trie.
type RecentRootsCache struct {
	cache *lru.Cache[Hash, struct{}]
}

// NewRecentRootsCache creates a cache remembering up to size recent roots.
func NewRecentRootsCache(size int) (*RecentRootsCache, error) {
	c, err := lru.New[Hash, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &RecentRootsCache{cache: c}, nil
}

// Seen reports whether root was recorded recently, and records it.
func (r *RecentRootsCache) Seen(root Hash) bool {
	if _, ok := r.cache.Get(root); ok {
		return true
	}
	r.cache.Add(root, struct{}{})
	return false
}

// Len returns the number of roots currently tracked.
func (r *RecentRootsCache) Len() int {
	return r.cache.Len()
}
