// Package blobstore provides storage abstraction for lsmgo's immutable
// blobs: flushed sorted runs and manifest files.
//
// BlobStore implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: In-memory, for tests
//   - LocalStore: Local filesystem with mmap-backed reads
//   - s3.Store: Amazon S3 with range reads and streaming uploads
//   - s3.DDBCommitStore: S3 + DynamoDB conditional writes for the CURRENT
//     manifest pointer
//   - minio.Store: MinIO and other S3-compatible object stores
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom backends. Blobs are
// written once and never modified, so implementations only need atomic
// publication (write to a temporary location, then rename/commit), not
// in-place update.
package blobstore
