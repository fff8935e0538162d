package engine

import "sync"

// CachedPage is one static-cache entry: the rendered document before
// any hand-off payload is appended, plus the page data snapshot needed
// to rebuild the per-request context block for later callers. Caching
// the full response body would replay the first caller's request id and
// user to everyone after them.
type CachedPage struct {
	HTML string
	Data map[string]any
}

// StaticCache holds rendered output for routes marked Static, keyed by
// chunk id, for the life of the process. Concurrent first renders may
// both publish; last write wins, which is harmless because static
// output is deterministic per id.
type StaticCache struct {
	pages sync.Map // chunk id -> CachedPage
}

// NewStaticCache returns an empty cache.
func NewStaticCache() *StaticCache {
	return &StaticCache{}
}

// Get returns the cached entry for a chunk id.
func (s *StaticCache) Get(id string) (CachedPage, bool) {
	v, ok := s.pages.Load(id)
	if !ok {
		return CachedPage{}, false
	}
	return v.(CachedPage), true
}

// Put stores a rendered entry.
func (s *StaticCache) Put(id string, entry CachedPage) {
	s.pages.Store(id, entry)
}

// Len reports how many documents are cached.
func (s *StaticCache) Len() int {
	n := 0
	s.pages.Range(func(_, _ any) bool { n++; return true })
	return n
}
