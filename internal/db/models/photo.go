// Package models - photo.go defines the Photo model for user-provided source images
// and the DreamPhoto join row linking photos to dreams.
package models

import "time"

// Photo kinds. The first webcam capture becomes the user's reference photo; uploads
// are only accepted once a webcam reference exists.
const (
	PhotoKindWebcam = "webcam"
	PhotoKindUpload = "upload"
)

// DreamPhoto roles.
const (
	DreamPhotoRoleSubject = "subject"
	DreamPhotoRoleDecor   = "decor"
)

// Photo represents a stored source image
type Photo struct {
	ID           string
	UserID       string
	Kind         string  // "webcam" or "upload"
	StorageKey   string  // Object key of the original in the storage backend
	ThumbnailKey *string // Object key of the 512px JPEG thumbnail
	ContentType  string
	Width        int
	Height       int
	SizeBytes    int64
	Checksum     string // SHA-256 of the original bytes, hex-encoded
	IsReference  bool   // The user's canonical likeness photo
	Enabled      bool   // Disabled photos are excluded from generation
	CreatedAt    time.Time
}

// DreamPhoto links a photo to a dream with a role
type DreamPhoto struct {
	DreamID string
	PhotoID string
	Role    string // "subject" or "decor"
}
