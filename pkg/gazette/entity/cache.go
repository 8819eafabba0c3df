package entity

import (
	"sort"
	"strings"
	"sync"
)

// Cache memoizes parse results per (text, scope). It is unbounded and lives
// as long as the parser that embeds it.
//
// Reset bumps a generation counter: a result computed while a Reset happened
// is returned to its caller but never stored, so a re-fit parser cannot serve
// results produced with its previous vocabulary.
type Cache struct {
	mu      sync.Mutex
	gen     uint64
	entries map[string][]Occurrence
}

// Parse returns the cached result for (text, scope) when useCache is set,
// otherwise (or on a miss) it runs compute.
func (c *Cache) Parse(text string, scope []string, useCache bool, compute func() ([]Occurrence, error)) ([]Occurrence, error) {
	if !useCache {
		return compute()
	}

	key := cacheKey(text, scope)

	c.mu.Lock()
	if res, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return clone(res), nil
	}
	gen := c.gen
	c.mu.Unlock()

	res, err := compute()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		if c.entries == nil {
			c.entries = make(map[string][]Occurrence)
		}
		c.entries[key] = clone(res)
	}
	c.mu.Unlock()

	return res, nil
}

// Reset drops every cached result.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = nil
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cacheKey canonicalizes the scope: order does not matter, but a nil scope
// (all entities) differs from an empty one (no entity).
func cacheKey(text string, scope []string) string {
	var b strings.Builder
	b.WriteString(text)
	b.WriteByte(0)
	if scope == nil {
		b.WriteByte('*')
		return b.String()
	}
	sorted := append([]string(nil), scope...)
	sort.Strings(sorted)
	b.WriteByte('[')
	for _, s := range sorted {
		b.WriteString(s)
		b.WriteByte(0)
	}
	return b.String()
}
