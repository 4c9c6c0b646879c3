// Package local implements the local filesystem storage backend. This backend is
// intended for development and single-node deployments only — it does not support
// horizontal scaling (multiple backend instances would need access to the same
// filesystem, e.g., via NFS). For production, use the S3 backend.
//
// Signed URLs: the generation engine fetches user photos over HTTP, so GetURL must
// produce something the engine can actually reach. When a signing secret is
// configured, GetURL mints a short-lived JWT bound to the storage path and embeds
// it in a /v1/files/*path?token=… URL served by the files handler. This mirrors
// the temporary-read-access semantics of S3 presigned URLs.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oneira/oneira/internal/auth"
	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/storage"
)

func init() {
	// Register local storage backend
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local, cfg.Server.GetPublicURL())
	})
}

// LocalStorage implements the Storage interface for local filesystem storage
type LocalStorage struct {
	basePath  string
	publicURL string
	signer    *auth.URLSigner
}

// New creates a new local filesystem storage backend. publicURL is the base URL
// signed file URLs are built on; when cfg.SigningSecret is empty, URLs are minted
// without a token and never expire.
func New(cfg *config.LocalStorageConfig, publicURL string) (*LocalStorage, error) {
	// Ensure base path exists
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	s := &LocalStorage{
		basePath:  cfg.BasePath,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
	if cfg.SigningSecret != "" {
		s.signer = auth.NewURLSigner(cfg.SigningSecret)
	}
	return s, nil
}

// Signer returns the URL signer used for file URLs, or nil when no signing
// secret is configured. The files handler uses the same signer to verify tokens.
func (s *LocalStorage) Signer() *auth.URLSigner {
	return s.signer
}

// Upload stores a file in the local filesystem
func (s *LocalStorage) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*storage.UploadResult, error) {
	// Create full path
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))

	// Ensure directory exists
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Create file
	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	// Calculate checksum while writing
	hasher := sha256.New()
	multiWriter := io.MultiWriter(file, hasher)

	written, err := io.Copy(multiWriter, reader)
	if err != nil {
		// Clean up partial file
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))

	return &storage.UploadResult{
		Path:     path,
		Size:     written,
		Checksum: checksum,
	}, nil
}

// Download retrieves a file from the local filesystem
func (s *LocalStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes a file from the local filesystem
func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, consider it deleted
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	// Try to remove empty parent directories (best effort)
	dir := filepath.Dir(fullPath)
	for dir != s.basePath {
		if err := os.Remove(dir); err != nil {
			break // Directory not empty or other error, stop trying
		}
		dir = filepath.Dir(dir)
	}

	return nil
}

// DeletePrefix removes every file under the given prefix. A photo directory
// (original plus thumbnail) is the typical target.
func (s *LocalStorage) DeletePrefix(ctx context.Context, prefix string) error {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(prefix))

	// Refuse to wipe the whole storage root on an empty or traversal prefix.
	cleaned := filepath.Clean(fullPath)
	base := filepath.Clean(s.basePath)
	if cleaned == base || !strings.HasPrefix(cleaned, base+string(os.PathSeparator)) {
		return fmt.Errorf("invalid prefix: %s", prefix)
	}

	if err := os.RemoveAll(cleaned); err != nil {
		return fmt.Errorf("failed to delete prefix: %w", err)
	}

	// Try to remove empty parent directories (best effort)
	dir := filepath.Dir(cleaned)
	for dir != s.basePath {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}

	return nil
}

// GetURL returns a URL for downloading the file through the files handler.
// With a signing secret configured the URL carries a token that expires after
// the given TTL; without one the URL is plain (development only).
func (s *LocalStorage) GetURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	// Check if file exists
	exists, err := s.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("file not found: %s", path)
	}

	fileURL := fmt.Sprintf("%s/v1/files/%s", s.publicURL, path)
	if s.signer == nil {
		return fileURL, nil
	}

	token, err := s.signer.Sign(path, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign file URL: %w", err)
	}
	return fileURL + "?token=" + url.QueryEscape(token), nil
}

// Exists checks if a file exists at the specified path
func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))

	_, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return true, nil
}

// GetMetadata retrieves file metadata without downloading the file
func (s *LocalStorage) GetMetadata(ctx context.Context, path string) (*storage.FileMetadata, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))

	stat, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to get file metadata: %w", err)
	}

	// Calculate checksum by reading the file
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))

	return &storage.FileMetadata{
		Path:         path,
		Size:         stat.Size(),
		Checksum:     checksum,
		LastModified: stat.ModTime(),
	}, nil
}
