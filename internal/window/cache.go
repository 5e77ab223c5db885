package window

import (
	"sort"
	"time"
)

// DefaultCacheTTL is how long a window stays known after it was last seen
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	descriptor Descriptor
	lastSeenAt time.Time
}

// cache remembers recently seen windows. It is not safe for concurrent use;
// the Engine serializes access.
type cache struct {
	entries map[Key]*cacheEntry
}

func newCache() *cache {
	return &cache{entries: make(map[Key]*cacheEntry)}
}

func (c *cache) upsert(d Descriptor, now time.Time) {
	k := d.Key()
	if e, ok := c.entries[k]; ok {
		e.descriptor = d
		e.lastSeenAt = now
		return
	}
	c.entries[k] = &cacheEntry{descriptor: d, lastSeenAt: now}
}

// purge drops entries last seen more than ttl before now and returns how many
// were removed.
func (c *cache) purge(now time.Time, ttl time.Duration) int {
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.lastSeenAt) > ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// missing returns cached descriptors whose key is not in seen, most recently
// seen first, then by app and title.
func (c *cache) missing(seen map[Key]struct{}) []*cacheEntry {
	out := make([]*cacheEntry, 0)
	for k, e := range c.entries {
		if _, ok := seen[k]; ok {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.lastSeenAt.Equal(b.lastSeenAt) {
			return a.lastSeenAt.After(b.lastSeenAt)
		}
		if a.descriptor.OwnerAppName != b.descriptor.OwnerAppName {
			return a.descriptor.OwnerAppName < b.descriptor.OwnerAppName
		}
		return a.descriptor.Title < b.descriptor.Title
	})
	return out
}

func (c *cache) remove(k Key) bool {
	if _, ok := c.entries[k]; !ok {
		return false
	}
	delete(c.entries, k)
	return true
}

func (c *cache) has(k Key) bool {
	_, ok := c.entries[k]
	return ok
}

func (c *cache) len() int {
	return len(c.entries)
}
