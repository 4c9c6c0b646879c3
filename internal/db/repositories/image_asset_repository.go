// image_asset_repository.go implements ImageAssetRepository. Assets are inserted by
// the job repository's success transaction; this repository only reads them.
package repositories

import (
	"context"
	"database/sql"

	"github.com/oneira/oneira/internal/db/models"
)

// ImageAssetRepository handles image asset queries
type ImageAssetRepository struct {
	db *sql.DB
}

// NewImageAssetRepository creates a new ImageAssetRepository
func NewImageAssetRepository(db *sql.DB) *ImageAssetRepository {
	return &ImageAssetRepository{db: db}
}

// ListByDream retrieves a dream's image assets, newest first
func (r *ImageAssetRepository) ListByDream(ctx context.Context, dreamID string) ([]*models.ImageAsset, error) {
	query := `
		SELECT id, dream_id, job_id, url, width, height, source, created_at
		FROM image_assets
		WHERE dream_id = $1
		ORDER BY created_at DESC, id
	`
	return r.queryAssets(ctx, query, dreamID)
}

// ListByJob retrieves the assets a single job produced
func (r *ImageAssetRepository) ListByJob(ctx context.Context, jobID string) ([]*models.ImageAsset, error) {
	query := `
		SELECT id, dream_id, job_id, url, width, height, source, created_at
		FROM image_assets
		WHERE job_id = $1
		ORDER BY created_at, id
	`
	return r.queryAssets(ctx, query, jobID)
}

// CountByJob returns the number of assets recorded for a job
func (r *ImageAssetRepository) CountByJob(ctx context.Context, jobID string) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM image_assets WHERE job_id = $1`
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(&total)
	return total, err
}

func (r *ImageAssetRepository) queryAssets(ctx context.Context, query string, args ...interface{}) ([]*models.ImageAsset, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := make([]*models.ImageAsset, 0)
	for rows.Next() {
		asset := &models.ImageAsset{}
		err := rows.Scan(
			&asset.ID,
			&asset.DreamID,
			&asset.JobID,
			&asset.URL,
			&asset.Width,
			&asset.Height,
			&asset.Source,
			&asset.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	return assets, rows.Err()
}
