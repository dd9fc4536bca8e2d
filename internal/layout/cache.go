package layout

import "github.com/llir/llvm/ir/types"

type cacheEntry struct {
	Layout TypeLayout
	Err    *Error
}

// cache is keyed by type identity; the parser shares named types, so the
// hit rate is good even though structurally equal literals are distinct keys.
type cache struct {
	byType map[types.Type]cacheEntry
}

func newCache() *cache {
	return &cache{byType: make(map[types.Type]cacheEntry, 64)}
}

func (c *cache) get(t types.Type) (cacheEntry, bool) {
	if c == nil {
		return cacheEntry{}, false
	}
	entry, ok := c.byType[t]
	return entry, ok
}

func (c *cache) put(t types.Type, entry *cacheEntry) {
	if c == nil {
		return
	}
	if entry == nil {
		delete(c.byType, t)
		return
	}
	c.byType[t] = *entry
}
