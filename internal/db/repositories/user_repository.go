// Package repositories implements the data access layer (repository pattern) for the platform.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly — all database access goes through this layer, which makes query logic testable in isolation and prevents accidental cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/oneira/oneira/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser creates a new user
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	query := `
		INSERT INTO users (id, pin_hash, role, status, plan_id, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.PINHash,
		user.Role,
		user.Status,
		user.PlanID,
		user.DisplayName,
		user.CreatedAt,
		user.UpdatedAt,
	)

	return err
}

// GetUserByID retrieves a user by ID. Soft-deleted users are returned as well;
// callers decide via IsActive whether the account may act.
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, pin_hash, role, status, plan_id, display_name, created_at, updated_at, deleted_at
		FROM users
		WHERE id = $1
	`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.PINHash,
		&user.Role,
		&user.Status,
		&user.PlanID,
		&user.DisplayName,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// UpdateProfile updates the user's display name
func (r *UserRepository) UpdateProfile(ctx context.Context, userID string, displayName *string) error {
	query := `
		UPDATE users
		SET display_name = $2, updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, displayName, time.Now())
	return err
}

// UpdatePINHash replaces the user's PIN hash
func (r *UserRepository) UpdatePINHash(ctx context.Context, userID, pinHash string) error {
	query := `
		UPDATE users
		SET pin_hash = $2, updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, pinHash, time.Now())
	return err
}

// UpdatePlan moves the user onto another plan
func (r *UserRepository) UpdatePlan(ctx context.Context, userID, planID string) error {
	query := `
		UPDATE users
		SET plan_id = $2, updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, planID, time.Now())
	return err
}

// SetStatus enables or disables an account
func (r *UserRepository) SetStatus(ctx context.Context, userID, status string) error {
	query := `
		UPDATE users
		SET status = $2, updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, status, time.Now())
	return err
}

// SoftDeleteUser marks the account deleted. The row and its history remain; sessions
// become invalid because validity checks require deleted_at IS NULL.
func (r *UserRepository) SoftDeleteUser(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, userID, time.Now())
	return err
}

// ListUsers retrieves a paginated list of users, newest first
func (r *UserRepository) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	// Get total count
	var total int
	countQuery := `SELECT COUNT(*) FROM users`
	err := r.db.QueryRowContext(ctx, countQuery).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	// Get paginated users
	query := `
		SELECT id, pin_hash, role, status, plan_id, display_name, created_at, updated_at, deleted_at
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user := &models.User{}
		err := rows.Scan(
			&user.ID,
			&user.PINHash,
			&user.Role,
			&user.Status,
			&user.PlanID,
			&user.DisplayName,
			&user.CreatedAt,
			&user.UpdatedAt,
			&user.DeletedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// Count returns the total number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM users`
	err := r.db.QueryRowContext(ctx, query).Scan(&total)
	return total, err
}
