// Package table implements the in-memory table of the storage engine: a
// fixed-capacity buffer of records that is appended to while mutable, frozen
// into a sorted immutable snapshot for flushing, and recycled once the flush
// has completed.
//
// # Lifecycle
//
// A Memory is created once at engine start with its full backing region
// pre-allocated, then reused across many cycles:
//
//	Mutable --Freeze--> Immutable --MarkFlushed--> Immutable(flushed) --Thaw--> Mutable
//
// The engine typically holds a pair of tables and swaps their roles at every
// freeze, so ingest waits on a flush only when the previous one has not
// completed by the next freeze.
//
// # Sort deferral
//
// Put is append-only; it maintains only a single sortedness bit, weakened
// when an out-of-order key arrives. The actual sort happens at Freeze (or
// lazily at Get). Duplicate keys are legal and sort stably, so the
// last-inserted record for a key wins at lookup time.
//
// # Discipline
//
// A Memory is single-writer and never allocates after construction. Wrong
// state or capacity overflow is a programming error in the write pipeline
// and panics.
package table
