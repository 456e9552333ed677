package model

import (
	"fmt"
)

// Snapshot is a monotonically increasing epoch tag supplied by the engine.
// A frozen table carries the snapshot at which it became immutable; the
// table itself never interprets the value.
type Snapshot uint64

// RunID is the unique identifier for a sorted run within an engine.
type RunID uint64

// Level is the compaction level a run belongs to. Freshly flushed runs are
// level 0.
type Level int

// RunRef identifies a flushed run and its position in the tree.
type RunRef struct {
	ID    RunID
	Level Level
}

// String returns a string representation of the RunRef.
func (r RunRef) String() string {
	return fmt.Sprintf("Run(L%d:%d)", r.Level, r.ID)
}

// BlobName returns the blob key a run is stored under.
func (r RunRef) BlobName() string {
	return fmt.Sprintf("runs/%06d.run", r.ID)
}
