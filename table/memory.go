package table

import (
	"context"
	"fmt"
	"slices"
	"unsafe"

	"github.com/hupe1980/lsmgo/internal/search"
	"github.com/hupe1980/lsmgo/model"
)

// Allocator is the source of table backing regions. It is called exactly
// twice per Memory lifetime: once at New and once at Close.
type Allocator interface {
	// AcquireMemory reserves bytes of memory, or fails if the budget is
	// exhausted.
	AcquireMemory(ctx context.Context, bytes int64) error

	// ReleaseMemory returns bytes to the budget.
	ReleaseMemory(bytes int64)
}

// Policy parameterizes a Memory with its record layout: the key projection,
// the total order on keys, the tombstone encoding, and the capacity of the
// backing region.
type Policy[K, V any] struct {
	// Capacity is the maximum record count. The backing region holds exactly
	// this many records for the whole lifetime of the table.
	Capacity int

	// KeyOf projects a record to its key.
	KeyOf func(*V) K

	// Compare is a total order on keys: negative if a<b, zero if a==b,
	// positive if a>b.
	Compare func(a, b K) int

	// TombstoneFrom constructs the record that encodes deletion of key.
	// The table stores tombstones like any other record; interpreting them
	// is the business of higher layers.
	TombstoneFrom func(K) V

	// IsTombstone reports whether a record encodes a deletion.
	IsTombstone func(*V) bool
}

func (p Policy[K, V]) validate() {
	if p.Capacity <= 0 {
		panic(fmt.Sprintf("table: invalid capacity %d", p.Capacity))
	}
	if p.KeyOf == nil || p.Compare == nil || p.TombstoneFrom == nil || p.IsTombstone == nil {
		panic("table: policy func is nil")
	}
}

// InitialState selects the state a Memory is born in.
type InitialState int

const (
	// InitialMutable starts the table empty and accepting writes.
	InitialMutable InitialState = iota

	// InitialImmutableFlushed starts the table as an already-flushed
	// immutable with snapshot 0. An engine holding a pair of tables starts
	// the standby in this shape so the first freeze can swap into it with a
	// plain Thaw.
	InitialImmutableFlushed
)

// state is a two-arm sum: a Memory is either mutable or immutable, and the
// flush bookkeeping exists only on the immutable arm.
type state interface {
	isState()
}

type mutable struct{}

type immutable struct {
	flushed     bool
	snapshotMin model.Snapshot
}

func (mutable) isState()    {}
func (*immutable) isState() {}

// Memory is the in-memory table: a fixed-capacity dual-state sorted buffer
// of records. See the package documentation for the lifecycle.
//
// Memory is not safe for concurrent use. Every operation runs to completion
// on the owning goroutine; the engine serializes access.
type Memory[K, V any] struct {
	policy  Policy[K, V]
	alloc   Allocator
	storage []V // length Capacity for the entire lifetime, never resized
	used    int
	sorted  bool // true guarantees storage[0:used] is non-decreasing by key
	state   state
	label   string
	bytes   int64
}

// New allocates a Memory with its full backing region. Allocation is the
// only recoverable failure of the whole lifecycle; no later operation
// allocates.
func New[K, V any](ctx context.Context, alloc Allocator, policy Policy[K, V], initial InitialState, label string) (*Memory[K, V], error) {
	policy.validate()

	var v V
	bytes := int64(policy.Capacity) * int64(unsafe.Sizeof(v))
	if err := alloc.AcquireMemory(ctx, bytes); err != nil {
		return nil, fmt.Errorf("table %s: %w", label, err)
	}

	m := &Memory[K, V]{
		policy:  policy,
		alloc:   alloc,
		storage: make([]V, policy.Capacity),
		sorted:  true,
		label:   label,
		bytes:   bytes,
	}

	switch initial {
	case InitialMutable:
		m.state = mutable{}
	case InitialImmutableFlushed:
		m.state = &immutable{flushed: true, snapshotMin: 0}
	default:
		panic(fmt.Sprintf("table %s: invalid initial state %d", label, initial))
	}

	return m, nil
}

// Close returns the backing region to the allocator. The table must not be
// used afterwards.
func (m *Memory[K, V]) Close() {
	if m.storage == nil {
		panic(fmt.Sprintf("table %s: double close", m.label))
	}
	m.storage = nil
	m.alloc.ReleaseMemory(m.bytes)
}

// Reset returns the table to a known empty shape without deallocating. The
// state tag is preserved: a mutable table resets to mutable, an immutable
// one to already-flushed immutable with snapshot 0.
func (m *Memory[K, V]) Reset() {
	switch m.state.(type) {
	case mutable:
		m.state = mutable{}
	case *immutable:
		m.state = &immutable{flushed: true, snapshotMin: 0}
	}
	m.used = 0
	m.sorted = true
}

// Put appends a copy of v. The table must be mutable and below capacity;
// anything else is a contract violation by the write pipeline.
//
// Sortedness is maintained as a single weakening bit: a key below the
// previous one clears it until the next Freeze or Get. Equal keys do not
// break sort order — inserting successive updates to the same key is the
// normal case.
func (m *Memory[K, V]) Put(v V) {
	if _, ok := m.state.(mutable); !ok {
		panic(fmt.Sprintf("table %s: put on immutable table", m.label))
	}
	if m.used == len(m.storage) {
		panic(fmt.Sprintf("table %s: put beyond capacity %d", m.label, len(m.storage)))
	}

	if m.sorted && m.used > 0 {
		last := m.policy.KeyOf(&m.storage[m.used-1])
		m.sorted = m.policy.Compare(last, m.policy.KeyOf(&v)) <= 0
	}

	m.storage[m.used] = v
	m.used++
}

// Get looks up the current record for key. The engine's read path uses it
// only to probe the frozen standby table; the active table is scanned
// directly, and the cache and flushed runs serve the rest.
//
// If the table is unsorted it is sorted in place first. Sorting is legal
// even on an immutable table — it is an idempotent canonicalization — but
// it invalidates any slice previously borrowed from Values, so Get must not
// be interleaved with borrows held across calls.
//
// With duplicate keys the last-inserted record wins: the sort is stable and
// the search resolves to the upper bound.
func (m *Memory[K, V]) Get(key K) (*V, bool) {
	m.sortIfNeeded()

	i := search.UpperBound(m.used, func(i int) bool {
		return m.policy.Compare(m.policy.KeyOf(&m.storage[i]), key) > 0
	})
	if i == 0 {
		return nil, false
	}
	v := &m.storage[i-1]
	if m.policy.Compare(m.policy.KeyOf(v), key) != 0 {
		return nil, false
	}
	return v, true
}

// Freeze transitions the table from mutable to immutable, canonicalizing the
// sort order and tagging the snapshot at which it was frozen. An empty table
// is born already flushed: there is nothing to write.
func (m *Memory[K, V]) Freeze(snapshotMin model.Snapshot) {
	if _, ok := m.state.(mutable); !ok {
		panic(fmt.Sprintf("table %s: freeze on immutable table", m.label))
	}

	m.sortIfNeeded()
	m.state = &immutable{flushed: m.used == 0, snapshotMin: snapshotMin}
}

// MarkFlushed records that the flusher has durably written this table's
// contents. It is the flusher's permission token: only after MarkFlushed may
// the engine Thaw the table.
func (m *Memory[K, V]) MarkFlushed() {
	im, ok := m.state.(*immutable)
	if !ok {
		panic(fmt.Sprintf("table %s: mark flushed on mutable table", m.label))
	}
	if im.flushed {
		panic(fmt.Sprintf("table %s: marked flushed twice", m.label))
	}
	im.flushed = true
}

// Thaw transitions a flushed immutable table back to an empty mutable one.
// The backing region is retained; only the length resets.
func (m *Memory[K, V]) Thaw() {
	im, ok := m.state.(*immutable)
	if !ok {
		panic(fmt.Sprintf("table %s: thaw on mutable table", m.label))
	}
	if !im.flushed {
		panic(fmt.Sprintf("table %s: thaw before flush completed", m.label))
	}
	if !m.sorted {
		panic(fmt.Sprintf("table %s: immutable table unsorted", m.label))
	}

	m.used = 0
	m.sorted = true
	m.state = mutable{}
}

// Len returns the number of live records.
func (m *Memory[K, V]) Len() int {
	return m.used
}

// Values returns the used prefix of the backing region, borrowed: it is
// valid until the next mutating operation (Put, Freeze, Thaw, Reset, or a
// Get that triggers a sort).
func (m *Memory[K, V]) Values() []V {
	return m.storage[:m.used]
}

// KeyMin returns the smallest key. The table must be immutable and
// non-empty.
func (m *Memory[K, V]) KeyMin() K {
	m.requireImmutableNonEmpty("key min")
	return m.policy.KeyOf(&m.storage[0])
}

// KeyMax returns the largest key. The table must be immutable and
// non-empty.
func (m *Memory[K, V]) KeyMax() K {
	m.requireImmutableNonEmpty("key max")
	return m.policy.KeyOf(&m.storage[m.used-1])
}

// Mutable reports whether the table currently accepts writes.
func (m *Memory[K, V]) Mutable() bool {
	_, ok := m.state.(mutable)
	return ok
}

// Flushed reports whether an immutable table's flush has completed. Panics
// on a mutable table: the question only exists on the immutable arm.
func (m *Memory[K, V]) Flushed() bool {
	im, ok := m.state.(*immutable)
	if !ok {
		panic(fmt.Sprintf("table %s: flushed query on mutable table", m.label))
	}
	return im.flushed
}

// SnapshotMin returns the snapshot an immutable table was frozen at. Panics
// on a mutable table.
func (m *Memory[K, V]) SnapshotMin() model.Snapshot {
	im, ok := m.state.(*immutable)
	if !ok {
		panic(fmt.Sprintf("table %s: snapshot query on mutable table", m.label))
	}
	return im.snapshotMin
}

// Label returns the diagnostic name given at construction.
func (m *Memory[K, V]) Label() string {
	return m.label
}

func (m *Memory[K, V]) sortIfNeeded() {
	if m.sorted {
		return
	}
	// Stable: insertion order among equal keys is what makes the last
	// update win under the upper-bound lookup.
	slices.SortStableFunc(m.storage[:m.used], func(a, b V) int {
		return m.policy.Compare(m.policy.KeyOf(&a), m.policy.KeyOf(&b))
	})
	m.sorted = true
}

func (m *Memory[K, V]) requireImmutableNonEmpty(op string) {
	if _, ok := m.state.(*immutable); !ok {
		panic(fmt.Sprintf("table %s: %s on mutable table", m.label, op))
	}
	if m.used == 0 {
		panic(fmt.Sprintf("table %s: %s on empty table", m.label, op))
	}
}
