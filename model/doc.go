// Package model defines core types used throughout lsmgo.
//
// # Identity Types
//
//   - Snapshot: Monotonic epoch tag assigned when a table freezes (uint64)
//   - RunID: Unique identifier for a flushed sorted run (uint64)
//   - Level: Compaction level of a run (freshly flushed runs are level 0)
//   - RunRef: (RunID, Level) pair naming a run and its blob
package model
