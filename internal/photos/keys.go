package photos

import "fmt"

// Object key layout. Original and thumbnail live under one photo-scoped
// prefix so deleting the prefix removes every artifact of the photo.
//
//	photos/{userID}/{photoID}/original.{ext}
//	photos/{userID}/{photoID}/thumb.jpg

// StoragePrefix returns the key prefix holding all artifacts of a photo.
func StoragePrefix(userID, photoID string) string {
	return fmt.Sprintf("photos/%s/%s", userID, photoID)
}

// OriginalKey returns the object key for the uploaded original. The
// extension follows the sniffed content type, not the client filename.
func OriginalKey(userID, photoID, contentType string) string {
	return fmt.Sprintf("photos/%s/%s/original.%s", userID, photoID, extensionFor(contentType))
}

// ThumbnailKey returns the object key for the photo's JPEG thumbnail.
func ThumbnailKey(userID, photoID string) string {
	return fmt.Sprintf("photos/%s/%s/thumb.jpg", userID, photoID)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}
