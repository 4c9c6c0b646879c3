// Package validation provides input validation for photo uploads. Each check
// covers a specific aspect of the upload: byte size against the configured cap,
// and content sniffing of the magic bytes so the declared Content-Type header is
// never trusted. Validators run before any decode or storage work so invalid
// uploads are rejected early without consuming CPU or storage.
package validation

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// DefaultMaxImageSize is the fallback upload cap (15MB) when no limit is
	// configured.
	DefaultMaxImageSize = 15 * 1024 * 1024
)

// Validation failures are sentinel errors so handlers can map them to error
// codes without string matching.
var (
	ErrImageEmpty       = errors.New("image data is empty")
	ErrImageTooLarge    = errors.New("image exceeds maximum allowed size")
	ErrUnsupportedImage = errors.New("unsupported image format")
)

// allowedImageTypes are the formats the thumbnail pipeline can decode.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// ValidateImage checks size and sniffs the actual content type from the magic
// bytes. Returns the detected content type (never the client-declared one).
func ValidateImage(data []byte, maxSize int64) (string, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxImageSize
	}

	if len(data) == 0 {
		return "", ErrImageEmpty
	}
	if int64(len(data)) > maxSize {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, len(data), maxSize)
	}

	// DetectContentType only looks at the first 512 bytes.
	contentType := http.DetectContentType(data)
	if !allowedImageTypes[contentType] {
		return "", fmt.Errorf("%w: %s (must be JPEG, PNG, or GIF)", ErrUnsupportedImage, contentType)
	}

	return contentType, nil
}
