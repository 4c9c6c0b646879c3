// photo_repository.go implements PhotoRepository for user source images and the
// webcam-reference rule queries.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/oneira/oneira/internal/db/models"
)

// PhotoRepository handles photo database operations
type PhotoRepository struct {
	db *sql.DB
}

// NewPhotoRepository creates a new PhotoRepository
func NewPhotoRepository(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// CreatePhoto creates a new photo record
func (r *PhotoRepository) CreatePhoto(ctx context.Context, photo *models.Photo) error {
	// The id may be minted by the caller: object keys embed it, and the
	// storage upload happens before the row exists.
	if photo.ID == "" {
		photo.ID = uuid.New().String()
	}
	photo.CreatedAt = time.Now()

	query := `
		INSERT INTO photos (id, user_id, kind, storage_key, thumbnail_key, content_type,
		                    width, height, size_bytes, checksum, is_reference, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		photo.ID,
		photo.UserID,
		photo.Kind,
		photo.StorageKey,
		photo.ThumbnailKey,
		photo.ContentType,
		photo.Width,
		photo.Height,
		photo.SizeBytes,
		photo.Checksum,
		photo.IsReference,
		photo.Enabled,
		photo.CreatedAt,
	)

	return err
}

// GetPhotoByID retrieves a photo by ID
func (r *PhotoRepository) GetPhotoByID(ctx context.Context, photoID string) (*models.Photo, error) {
	query := `
		SELECT id, user_id, kind, storage_key, thumbnail_key, content_type,
		       width, height, size_bytes, checksum, is_reference, enabled, created_at
		FROM photos
		WHERE id = $1
	`

	photo := &models.Photo{}
	err := r.db.QueryRowContext(ctx, query, photoID).Scan(
		&photo.ID,
		&photo.UserID,
		&photo.Kind,
		&photo.StorageKey,
		&photo.ThumbnailKey,
		&photo.ContentType,
		&photo.Width,
		&photo.Height,
		&photo.SizeBytes,
		&photo.Checksum,
		&photo.IsReference,
		&photo.Enabled,
		&photo.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return photo, nil
}

// ListPhotosByUser retrieves all photos of a user, newest first
func (r *PhotoRepository) ListPhotosByUser(ctx context.Context, userID string) ([]*models.Photo, error) {
	query := `
		SELECT id, user_id, kind, storage_key, thumbnail_key, content_type,
		       width, height, size_bytes, checksum, is_reference, enabled, created_at
		FROM photos
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := make([]*models.Photo, 0)
	for rows.Next() {
		photo := &models.Photo{}
		err := rows.Scan(
			&photo.ID,
			&photo.UserID,
			&photo.Kind,
			&photo.StorageKey,
			&photo.ThumbnailKey,
			&photo.ContentType,
			&photo.Width,
			&photo.Height,
			&photo.SizeBytes,
			&photo.Checksum,
			&photo.IsReference,
			&photo.Enabled,
			&photo.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}

	return photos, rows.Err()
}

// CountPhotosByUser returns the number of photos a user has stored, for plan limits
func (r *PhotoRepository) CountPhotosByUser(ctx context.Context, userID string) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM photos WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&total)
	return total, err
}

// HasWebcamReference reports whether the user already has a webcam reference photo
func (r *PhotoRepository) HasWebcamReference(ctx context.Context, userID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM photos WHERE user_id = $1 AND kind = $2 AND is_reference = TRUE)`
	err := r.db.QueryRowContext(ctx, query, userID, models.PhotoKindWebcam).Scan(&exists)
	return exists, err
}

// SetEnabled toggles whether a photo participates in generation
func (r *PhotoRepository) SetEnabled(ctx context.Context, photoID string, enabled bool) error {
	query := `UPDATE photos SET enabled = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, photoID, enabled)
	return err
}

// DeletePhoto deletes a photo record (links in dream_photos cascade)
func (r *PhotoRepository) DeletePhoto(ctx context.Context, photoID string) error {
	query := `DELETE FROM photos WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, photoID)
	return err
}
