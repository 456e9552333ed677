package engine

import (
	"github.com/zhangyunhao116/skipmap"
)

// lookupCache is the write-through read cache in front of the tables and
// runs. Every Put and Delete stores the latest record for its key, so a hit
// is always current; tombstones are cached like live records so deleted keys
// answer without touching a run.
//
// The cache is a concurrent skip-list map. There is no per-entry eviction:
// when the entry count outgrows the configured capacity the whole cache is
// reset, which is cheap and keeps the hot write set resident.
type lookupCache[K, V any] struct {
	capacity int
	less     func(a, b K) bool
	m        *skipmap.FuncMap[K, V]
}

func newLookupCache[K, V any](capacity int, less func(a, b K) bool) *lookupCache[K, V] {
	if capacity <= 0 {
		return nil
	}
	return &lookupCache[K, V]{
		capacity: capacity,
		less:     less,
		m:        skipmap.NewFunc[K, V](less),
	}
}

// store records the latest version of key. Returns the number of entries
// dropped by a capacity reset, if one happened.
func (c *lookupCache[K, V]) store(key K, v V) int {
	if c == nil {
		return 0
	}

	evicted := 0
	if _, ok := c.m.Load(key); !ok && c.m.Len() >= c.capacity {
		evicted = c.m.Len()
		c.m = skipmap.NewFunc[K, V](c.less)
	}
	c.m.Store(key, v)
	return evicted
}

func (c *lookupCache[K, V]) load(key K) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	return c.m.Load(key)
}
