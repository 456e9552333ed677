// Package s3 implements blobstore.BlobStore on Amazon S3.
//
// Runs are written as streaming multipart uploads and read with ranged GETs,
// so neither side ever buffers a whole run in memory.
//
// S3 alone cannot compare-and-swap the CURRENT manifest pointer; use
// DDBCommitStore to layer DynamoDB conditional writes on top when multiple
// writers may commit concurrently:
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("ledger/"))
//	commits := s3.NewDDBCommitStore(store, ddbClient, "lsmgo-commits", "s3://my-bucket/ledger")
package s3
