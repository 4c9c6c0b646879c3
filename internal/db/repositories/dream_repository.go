// dream_repository.go implements DreamRepository using sqlx struct scanning; the
// Dream model carries db tags for it. Photo links live in the dream_photos join
// table and are replaced wholesale on update.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oneira/oneira/internal/db/models"
)

// DreamRepository handles dream database operations
type DreamRepository struct {
	db *sqlx.DB
}

// NewDreamRepository creates a new DreamRepository
func NewDreamRepository(db *sqlx.DB) *DreamRepository {
	return &DreamRepository{db: db}
}

// CreateDream creates a new dream
func (r *DreamRepository) CreateDream(ctx context.Context, dream *models.Dream) error {
	dream.ID = uuid.New().String()
	dream.CreatedAt = time.Now()
	dream.UpdatedAt = dream.CreatedAt
	if dream.Status == "" {
		dream.Status = models.DreamStatusDraft
	}
	if len(dream.Reject) == 0 {
		dream.Reject = []byte("[]")
	}

	query := `
		INSERT INTO dreams (id, user_id, title, description, reject, style, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		dream.ID,
		dream.UserID,
		dream.Title,
		dream.Description,
		dream.Reject,
		dream.Style,
		dream.Status,
		dream.CreatedAt,
		dream.UpdatedAt,
	)

	return err
}

// GetDreamByID retrieves a dream by ID
func (r *DreamRepository) GetDreamByID(ctx context.Context, dreamID string) (*models.Dream, error) {
	var dream models.Dream
	query := `
		SELECT id, user_id, title, description, reject, style, status, last_job_id, created_at, updated_at
		FROM dreams
		WHERE id = $1
	`
	err := r.db.GetContext(ctx, &dream, query, dreamID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dream, nil
}

// ListDreamsByUser retrieves a user's dreams, newest first, plus the total count
func (r *DreamRepository) ListDreamsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Dream, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM dreams WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, err
	}

	var dreams []*models.Dream
	query := `
		SELECT id, user_id, title, description, reject, style, status, last_job_id, created_at, updated_at
		FROM dreams
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &dreams, query, userID, limit, offset); err != nil {
		return nil, 0, err
	}
	if dreams == nil {
		dreams = make([]*models.Dream, 0)
	}

	return dreams, total, nil
}

// UpdateDream updates the editable fields of a dream
func (r *DreamRepository) UpdateDream(ctx context.Context, dream *models.Dream) error {
	dream.UpdatedAt = time.Now()

	query := `
		UPDATE dreams
		SET title = $2, description = $3, reject = $4, style = $5, updated_at = $6
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		dream.ID,
		dream.Title,
		dream.Description,
		dream.Reject,
		dream.Style,
		dream.UpdatedAt,
	)

	return err
}

// DeleteDream deletes a dream (cascades to jobs, photo links, and image assets)
func (r *DreamRepository) DeleteDream(ctx context.Context, dreamID string) error {
	query := `DELETE FROM dreams WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, dreamID)
	return err
}

// SetGenerating flips the dream into the generating state and records the new job
func (r *DreamRepository) SetGenerating(ctx context.Context, dreamID, jobID string) error {
	query := `
		UPDATE dreams
		SET status = $2, last_job_id = $3, updated_at = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, dreamID, models.DreamStatusGenerating, jobID, time.Now())
	return err
}

// SetDreamPhotos replaces the dream's photo links in one transaction
func (r *DreamRepository) SetDreamPhotos(ctx context.Context, dreamID string, links []models.DreamPhoto) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM dream_photos WHERE dream_id = $1`, dreamID); err != nil {
		return err
	}

	insert := `INSERT INTO dream_photos (dream_id, photo_id, role) VALUES ($1, $2, $3)`
	for _, link := range links {
		if _, err := tx.ExecContext(ctx, insert, dreamID, link.PhotoID, link.Role); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetDreamPhotoLinks retrieves the raw photo links of a dream
func (r *DreamRepository) GetDreamPhotoLinks(ctx context.Context, dreamID string) ([]models.DreamPhoto, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT dream_id, photo_id, role FROM dream_photos WHERE dream_id = $1`, dreamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make([]models.DreamPhoto, 0)
	for rows.Next() {
		var link models.DreamPhoto
		if err := rows.Scan(&link.DreamID, &link.PhotoID, &link.Role); err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

// ListEnabledDreamPhotos retrieves the dream's linked photos that are still enabled,
// in link order. These are the photos handed to the generation engine.
func (r *DreamRepository) ListEnabledDreamPhotos(ctx context.Context, dreamID string) ([]*models.Photo, error) {
	query := `
		SELECT p.id, p.user_id, p.kind, p.storage_key, p.thumbnail_key, p.content_type,
		       p.width, p.height, p.size_bytes, p.checksum, p.is_reference, p.enabled, p.created_at
		FROM photos p
		JOIN dream_photos dp ON dp.photo_id = p.id
		WHERE dp.dream_id = $1 AND p.enabled = TRUE
		ORDER BY p.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, dreamID)
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
