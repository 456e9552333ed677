// Package run implements the on-blob format for flushed tables: a sorted
// run of fixed-layout records stored as compressed, checksummed blocks.
//
// # Layout
//
//	[header] [block]... [footer] [trailer]
//
// The header fixes the record size, block size, compression codec, and the
// snapshot the source table was frozen at. Each block holds a fixed number of
// records (except the last), so a record index maps to its block by division;
// readers fetch and decode single blocks on demand, and each block carries a
// CRC32C checksum of its payload. The footer carries the record count, a
// Roaring bitmap of tombstone rows, so compaction can drop deletions without
// decoding records, and the block offset index. The trailer locates the
// footer and repeats the magic number; the header, footer and trailer carry
// no checksum.
//
// Records are written in key order (the source table is frozen, hence
// sorted); point lookups binary-search by record index through
// Reader.Record, without any key metadata in the file itself.
package run
