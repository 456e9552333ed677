// Package engine implements the write pipeline around the in-memory table
// pair: ingest, freeze, background flush to sorted runs, and the read path
// across cache, tables, and runs.
//
// # Table lifecycle
//
// The engine owns two tables. The active one absorbs writes; the standby is
// the previously frozen one, flushed in the background. When the active
// table fills (or a checkpoint demands it), the engine waits for the
// in-flight flush if any, thaws the standby, freezes the active table with
// the next snapshot number, and swaps their roles. The frozen table is
// handed to the flusher, which writes a run, commits the manifest, and only
// then marks the table flushed — the permission token the next swap
// consumes.
//
// # Read path
//
// Gets consult the write-through lookup cache first, then the active table
// (backward scan, so the latest write for a key wins), then the frozen
// standby (binary search; it is sorted), then the flushed runs newest-first.
// A tombstone found at any stage ends the search.
package engine
