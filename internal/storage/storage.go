// Package storage defines the Storage interface and common types for the
// object storage backends holding user photos and their thumbnails. Two
// backends ship with the server: s3 (presigned URLs) and local (signed
// /v1/files URLs). A backend registers itself with the factory from its own
// init(), so making one available is a blank import at the wiring site.
package storage

import (
	"context"
	"io"
	"time"
)

// Storage defines the interface for all storage backends
// Implementations must support upload, download, delete, and URL generation
type Storage interface {
	// Upload stores a file and returns the storage result with path and checksum
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Download retrieves a file and returns a reader
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes a file from storage
	Delete(ctx context.Context, path string) error

	// DeletePrefix removes every file under the given prefix. Used when a photo
	// (original plus thumbnail) or a whole user directory is removed.
	DeletePrefix(ctx context.Context, prefix string) error

	// GetURL returns a direct download URL valid for the specified TTL.
	// For S3 this is a presigned URL; for local storage it is a signed
	// /v1/files/ URL served by the files handler. These URLs are handed to the
	// generation engine so it can fetch user photos without holding credentials.
	GetURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// Exists checks if a file exists at the specified path
	Exists(ctx context.Context, path string) (bool, error)

	// GetMetadata retrieves file metadata without downloading the entire file
	GetMetadata(ctx context.Context, path string) (*FileMetadata, error)
}

// UploadResult contains information about an uploaded file
type UploadResult struct {
	// Path is the storage path where the file was stored
	Path string

	// Size is the file size in bytes
	Size int64

	// Checksum is the SHA256 hash of the file contents
	Checksum string
}

// FileMetadata contains metadata about a stored file
type FileMetadata struct {
	// Path is the storage path of the file
	Path string

	// Size is the file size in bytes
	Size int64

	// Checksum is the SHA256 hash of the file contents
	Checksum string

	// LastModified is the timestamp when the file was last modified
	LastModified time.Time
}
