// Package blobstore specifies the remote filesystem contract the
// durability pipeline publishes its snapshots and incremental logs against
// (spec §6.2). Two adapters exist: s3blob for production, backed by AWS S3,
// and localblob, a disk-backed stand-in used in tests and single-node
// deployments without an object store.
package blobstore

import "context"

// Store is a flat, prefix-addressable remote filesystem. Paths are
// forward-slash separated and case-sensitive.
type Store interface {
	// UploadFile uploads the contents of localPath to remotePath.
	UploadFile(ctx context.Context, remotePath, localPath string) error

	// DownloadFile downloads remotePath into localPath, creating parent
	// directories as needed.
	DownloadFile(ctx context.Context, remotePath, localPath string) error

	// List returns every remote path beginning with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// DeleteFile removes remotePath. Deleting an absent path is not an
	// error.
	DeleteFile(ctx context.Context, remotePath string) error

	// LocalFile returns a local staging path suitable for writing a blob's
	// contents to before uploading, or for receiving a download into.
	// Callers are responsible for removing it when done.
	LocalFile(remotePath string) (string, error)
}
