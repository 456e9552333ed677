// Package minio implements blobstore.BlobStore for MinIO and other
// S3-compatible object stores.
//
// Use this backend for self-hosted deployments where the AWS SDK's
// credential chain and endpoint handling get in the way:
//
//	client, _ := minio.New("minio.local:9000", &minio.Options{...})
//	store := lsmminio.NewStore(client, "ledger", "runs/")
package minio
