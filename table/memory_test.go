package table

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lsmgo/model"
	"github.com/hupe1980/lsmgo/resource"
)

// rec is the test record: a key plus a payload so tests can tell apart
// successive updates to the same key.
type rec struct {
	key uint64
	val string
}

const tombstoneVal = "\x00tombstone"

func testPolicy(capacity int) Policy[uint64, rec] {
	return Policy[uint64, rec]{
		Capacity: capacity,
		KeyOf:    func(r *rec) uint64 { return r.key },
		Compare: func(a, b uint64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		},
		TombstoneFrom: func(k uint64) rec { return rec{key: k, val: tombstoneVal} },
		IsTombstone:   func(r *rec) bool { return r.val == tombstoneVal },
	}
}

func newTestMemory(t *testing.T, capacity int, initial InitialState) *Memory[uint64, rec] {
	t.Helper()

	alloc := resource.NewController(resource.Config{})
	m, err := New(context.Background(), alloc, testPolicy(capacity), initial, "test")
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

// checkInvariants asserts the properties that must hold between any two
// public operations.
func checkInvariants(t *testing.T, m *Memory[uint64, rec]) {
	t.Helper()

	require.LessOrEqual(t, m.used, len(m.storage))
	require.Equal(t, m.policy.Capacity, len(m.storage))

	if m.sorted {
		for i := 1; i < m.used; i++ {
			require.LessOrEqual(t, m.storage[i-1].key, m.storage[i].key)
		}
	}
	if !m.Mutable() {
		require.True(t, m.sorted)
	}
}

func TestMemory_Fresh(t *testing.T) {
	m := newTestMemory(t, 16, InitialMutable)

	assert.True(t, m.Mutable())
	assert.Equal(t, 0, m.Len())
	assert.True(t, m.sorted)
	assert.Empty(t, m.Values())
	checkInvariants(t, m)
}

func TestMemory_InitialImmutableFlushed(t *testing.T) {
	m := newTestMemory(t, 16, InitialImmutableFlushed)

	assert.False(t, m.Mutable())
	assert.True(t, m.Flushed())
	assert.EqualValues(t, 0, m.SnapshotMin())
	assert.Equal(t, 0, m.Len())

	// Swaps in with a plain Thaw.
	m.Thaw()
	assert.True(t, m.Mutable())
	checkInvariants(t, m)
}

func TestMemory_OutOfMemory(t *testing.T) {
	alloc := resource.NewController(resource.Config{MemoryLimitBytes: 1})
	_, err := New(context.Background(), alloc, testPolicy(1024), InitialMutable, "oom")
	assert.ErrorIs(t, err, resource.ErrOutOfMemory)
	assert.Zero(t, alloc.MemoryUsage())
}

func TestMemory_CloseReleasesRegion(t *testing.T) {
	alloc := resource.NewController(resource.Config{})
	m, err := New(context.Background(), alloc, testPolicy(64), InitialMutable, "close")
	require.NoError(t, err)
	require.Positive(t, alloc.MemoryUsage())

	m.Close()
	assert.Zero(t, alloc.MemoryUsage())

	assert.Panics(t, func() { m.Close() })
}

// Scenario: monotone inserts keep the table sorted, one out-of-order insert
// clears the bit, and freeze canonicalizes.
func TestMemory_MonotoneInsertFreezeInspect(t *testing.T) {
	m := newTestMemory(t, 16, InitialMutable)

	m.Put(rec{key: 1, val: "a"})
	m.Put(rec{key: 3, val: "b"})
	m.Put(rec{key: 5, val: "c"})
	assert.Equal(t, 3, m.Len())
	assert.True(t, m.sorted)
	checkInvariants(t, m)

	m.Put(rec{key: 0, val: "d"})
	assert.False(t, m.sorted)
	checkInvariants(t, m)

	m.Freeze(0)
	assert.Equal(t, 4, m.Len())
	assert.False(t, m.Mutable())
	assert.False(t, m.Flushed())
	assert.True(t, m.sorted)
	assert.EqualValues(t, 0, m.KeyMin())
	assert.EqualValues(t, 5, m.KeyMax())

	keys := make([]uint64, 0, m.Len())
	for i := range m.Values() {
		keys = append(keys, m.Values()[i].key)
	}
	assert.Equal(t, []uint64{0, 1, 3, 5}, keys)
	checkInvariants(t, m)
}

// Scenario: thaw after flush empties the table without reallocating.
func TestMemory_ThawAfterFlush(t *testing.T) {
	m := newTestMemory(t, 16, InitialMutable)

	m.Put(rec{key: 1, val: "a"})
	m.Put(rec{key: 0, val: "b"})
	m.Freeze(3)
	assert.EqualValues(t, 3, m.SnapshotMin())

	before := &m.storage[0]

	m.MarkFlushed()
	assert.True(t, m.Flushed())
	m.Thaw()

	assert.True(t, m.Mutable())
	assert.Equal(t, 0, m.Len())
	assert.True(t, m.sorted)
	assert.Same(t, before, &m.storage[0])
	checkInvariants(t, m)
}

// Scenario: duplicate keys, last writer wins.
func TestMemory_DuplicateKeysLastWriterWins(t *testing.T) {
	m := newTestMemory(t, 16, InitialMutable)

	m.Put(rec{key: 5, val: "A"})
	m.Put(rec{key: 5, val: "B"})
	m.Put(rec{key: 5, val: "C"})
	m.Freeze(1)

	got, ok := m.Get(5)
	require.True(t, ok)
	assert.Equal(t, "C", got.val)
	checkInvariants(t, m)
}

// Scenario: an empty freeze is born flushed.
func TestMemory_EmptyFreezeBornFlushed(t *testing.T) {
	m := newTestMemory(t, 16, InitialMutable)

	m.Freeze(7)
	assert.False(t, m.Mutable())
	assert.True(t, m.Flushed())
	assert.EqualValues(t, 7, m.SnapshotMin())

	m.Thaw()
	assert.True(t, m.Mutable())
	assert.Equal(t, 0, m.Len())
	checkInvariants(t, m)
}

// Scenario: lazy sort on get.
func TestMemory_LazySortOnGet(t *testing.T) {
	m := newTestMemory(t, 16, InitialMutable)

	m.Put(rec{key: 3, val: "a"})
	m.Put(rec{key: 1, val: "b"})
	m.Put(rec{key: 2, val: "c"})
	require.False(t, m.sorted)

	got, ok := m.Get(2)
	require.True(t, ok)
	assert.Equal(t, "c", got.val)
	assert.True(t, m.sorted)
	checkInvariants(t, m)
}

// Scenario: reset preserves the state tag.
func TestMemory_ResetPreservesStateTag(t *testing.T) {
	m := newTestMemory(t, 16, InitialImmutableFlushed)

	m.Thaw()
	m.Put(rec{key: 9, val: "a"})
	m.Freeze(9)
	assert.EqualValues(t, 9, m.SnapshotMin())

	m.Reset()
	assert.False(t, m.Mutable())
	assert.True(t, m.Flushed())
	assert.EqualValues(t, 0, m.SnapshotMin())
	assert.Equal(t, 0, m.Len())
	checkInvariants(t, m)

	mm := newTestMemory(t, 16, InitialMutable)
	mm.Put(rec{key: 1, val: "x"})
	mm.Reset()
	assert.True(t, mm.Mutable())
	assert.Equal(t, 0, mm.Len())
	checkInvariants(t, mm)
}

func TestMemory_SortednessWeakening(t *testing.T) {
	m := newTestMemory(t, 16, InitialMutable)

	// Sorted arrival keeps the bit set, duplicates included.
	for _, k := range []uint64{1, 2, 2, 4} {
		m.Put(rec{key: k})
		assert.True(t, m.sorted)
	}

	// The first out-of-order pair clears it, and it stays cleared.
	m.Put(rec{key: 3})
	assert.False(t, m.sorted)
	m.Put(rec{key: 100})
	assert.False(t, m.sorted)

	// Freeze restores it.
	m.Freeze(1)
	assert.True(t, m.sorted)
	checkInvariants(t, m)
}

func TestMemory_GetMisses(t *testing.T) {
	m := newTestMemory(t, 16, InitialMutable)

	m.Put(rec{key: 2, val: "a"})
	m.Put(rec{key: 8, val: "b"})

	_, ok := m.Get(1)
	assert.False(t, ok)
	_, ok = m.Get(5)
	assert.False(t, ok)
	_, ok = m.Get(9)
	assert.False(t, ok)

	got, ok := m.Get(8)
	require.True(t, ok)
	assert.Equal(t, "b", got.val)
}

func TestMemory_GetOnEmpty(t *testing.T) {
	m := newTestMemory(t, 16, InitialMutable)

	_, ok := m.Get(1)
	assert.False(t, ok)
}

func TestMemory_SortIdempotent(t *testing.T) {
	m := newTestMemory(t, 16, InitialMutable)

	m.Put(rec{key: 3})
	m.Put(rec{key: 1})

	_, _ = m.Get(1)
	require.True(t, m.sorted)

	// A second Get finds the bit set and must not re-sort; with the bit set
	// the only work left is the binary search.
	_, ok := m.Get(3)
	assert.True(t, ok)
	assert.True(t, m.sorted)
}

func TestMemory_GetOnImmutable(t *testing.T) {
	// Get is legal on an immutable table; Freeze already sorted it, so Get
	// only searches and the table stays immutable.
	m := newTestMemory(t, 16, InitialMutable)

	m.Put(rec{key: 2, val: "a"})
	m.Freeze(1)
	require.True(t, m.sorted)

	got, ok := m.Get(2)
	require.True(t, ok)
	assert.Equal(t, "a", got.val)
	assert.False(t, m.Mutable())
}

func TestMemory_KeyBoundsAgreeWithScan(t *testing.T) {
	m := newTestMemory(t, 32, InitialMutable)

	for _, k := range []uint64{12, 4, 9, 4, 30, 17} {
		m.Put(rec{key: k})
	}
	m.Freeze(2)

	values := m.Values()
	minKey, maxKey := values[0].key, values[0].key
	for i := range values {
		if values[i].key < minKey {
			minKey = values[i].key
		}
		if values[i].key > maxKey {
			maxKey = values[i].key
		}
	}
	assert.Equal(t, minKey, m.KeyMin())
	assert.Equal(t, maxKey, m.KeyMax())
}

func TestMemory_Tombstones(t *testing.T) {
	// Tombstones are records like any other: stored, sorted, and returned.
	m := newTestMemory(t, 16, InitialMutable)

	p := testPolicy(16)
	m.Put(rec{key: 6, val: "live"})
	m.Put(p.TombstoneFrom(6))
	m.Freeze(1)

	got, ok := m.Get(6)
	require.True(t, ok)
	assert.True(t, p.IsTombstone(got))
}

func TestMemory_ContractViolations(t *testing.T) {
	t.Run("put on immutable", func(t *testing.T) {
		m := newTestMemory(t, 4, InitialMutable)
		m.Freeze(1)
		assert.Panics(t, func() { m.Put(rec{key: 1}) })
	})

	t.Run("put beyond capacity", func(t *testing.T) {
		m := newTestMemory(t, 2, InitialMutable)
		m.Put(rec{key: 1})
		m.Put(rec{key: 2})
		assert.Panics(t, func() { m.Put(rec{key: 3}) })
	})

	t.Run("freeze twice", func(t *testing.T) {
		m := newTestMemory(t, 4, InitialMutable)
		m.Freeze(1)
		assert.Panics(t, func() { m.Freeze(2) })
	})

	t.Run("thaw before flush", func(t *testing.T) {
		m := newTestMemory(t, 4, InitialMutable)
		m.Put(rec{key: 1})
		m.Freeze(1)
		assert.Panics(t, func() { m.Thaw() })
	})

	t.Run("thaw while mutable", func(t *testing.T) {
		m := newTestMemory(t, 4, InitialMutable)
		assert.Panics(t, func() { m.Thaw() })
	})

	t.Run("mark flushed while mutable", func(t *testing.T) {
		m := newTestMemory(t, 4, InitialMutable)
		assert.Panics(t, func() { m.MarkFlushed() })
	})

	t.Run("mark flushed twice", func(t *testing.T) {
		m := newTestMemory(t, 4, InitialMutable)
		m.Put(rec{key: 1})
		m.Freeze(1)
		m.MarkFlushed()
		assert.Panics(t, func() { m.MarkFlushed() })
	})

	t.Run("key bounds while mutable", func(t *testing.T) {
		m := newTestMemory(t, 4, InitialMutable)
		m.Put(rec{key: 1})
		assert.Panics(t, func() { m.KeyMin() })
		assert.Panics(t, func() { m.KeyMax() })
	})

	t.Run("key bounds on empty immutable", func(t *testing.T) {
		m := newTestMemory(t, 4, InitialMutable)
		m.Freeze(1)
		assert.Panics(t, func() { m.KeyMin() })
	})

	t.Run("invalid policy", func(t *testing.T) {
		alloc := resource.NewController(resource.Config{})
		p := testPolicy(0)
		assert.Panics(t, func() {
			_, _ = New(context.Background(), alloc, p, InitialMutable, "bad")
		})
	})
}

func TestMemory_ManyCycles(t *testing.T) {
	m := newTestMemory(t, 8, InitialMutable)

	for cycle := 0; cycle < 10; cycle++ {
		for i := 0; i < 8; i++ {
			m.Put(rec{key: uint64(8 - i), val: "x"})
		}
		m.Freeze(model.Snapshot(cycle + 1))
		assert.EqualValues(t, 1, m.KeyMin())
		assert.EqualValues(t, 8, m.KeyMax())
		m.MarkFlushed()
		m.Thaw()
		assert.Equal(t, 0, m.Len())
		checkInvariants(t, m)
	}
}
