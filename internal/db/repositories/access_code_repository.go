// access_code_repository.go implements AccessCodeRepository. The redemption write
// path is a single transaction with a conditional update on the code row, so two
// concurrent redemptions of a last-use code cannot both create an account.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oneira/oneira/internal/db/models"
)

// ErrCodeConflict is returned when a conditional access-code update affects zero
// rows: the code left the valid state between read and write.
var ErrCodeConflict = errors.New("access code is no longer redeemable")

// AccessCodeRepository handles access code database operations
type AccessCodeRepository struct {
	db *sql.DB
}

// NewAccessCodeRepository creates a new AccessCodeRepository
func NewAccessCodeRepository(db *sql.DB) *AccessCodeRepository {
	return &AccessCodeRepository{db: db}
}

// CreateAccessCode creates a single access code
func (r *AccessCodeRepository) CreateAccessCode(ctx context.Context, code *models.AccessCode) error {
	code.ID = uuid.New().String()
	code.CreatedAt = time.Now()

	query := `
		INSERT INTO access_codes (id, code, source, status, max_activations, current_uses, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		code.ID,
		code.Code,
		code.Source,
		code.Status,
		code.MaxActivations,
		code.CurrentUses,
		code.ExpiresAt,
		code.CreatedAt,
	)

	return err
}

// CreateBatch inserts a batch of freshly minted codes in one transaction
func (r *AccessCodeRepository) CreateBatch(ctx context.Context, codes []*models.AccessCode) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	query := `
		INSERT INTO access_codes (id, code, source, status, max_activations, current_uses, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	for _, code := range codes {
		code.ID = uuid.New().String()
		code.CreatedAt = now
		_, err := tx.ExecContext(ctx, query,
			code.ID,
			code.Code,
			code.Source,
			code.Status,
			code.MaxActivations,
			code.CurrentUses,
			code.ExpiresAt,
			code.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByCode retrieves an access code by its canonical code string
func (r *AccessCodeRepository) GetByCode(ctx context.Context, code string) (*models.AccessCode, error) {
	query := `
		SELECT id, code, source, status, max_activations, current_uses, expires_at, user_id, used_at, created_at
		FROM access_codes
		WHERE code = $1
	`

	ac := &models.AccessCode{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&ac.ID,
		&ac.Code,
		&ac.Source,
		&ac.Status,
		&ac.MaxActivations,
		&ac.CurrentUses,
		&ac.ExpiresAt,
		&ac.UserID,
		&ac.UsedAt,
		&ac.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return ac, nil
}

// GetByID retrieves an access code by ID
func (r *AccessCodeRepository) GetByID(ctx context.Context, id string) (*models.AccessCode, error) {
	query := `
		SELECT id, code, source, status, max_activations, current_uses, expires_at, user_id, used_at, created_at
		FROM access_codes
		WHERE id = $1
	`

	ac := &models.AccessCode{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ac.ID,
		&ac.Code,
		&ac.Source,
		&ac.Status,
		&ac.MaxActivations,
		&ac.CurrentUses,
		&ac.ExpiresAt,
		&ac.UserID,
		&ac.UsedAt,
		&ac.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return ac, nil
}

// MarkExpired persists the expired status of a code whose expires_at has passed.
// Conditional on the code still being valid; losing the race is fine because every
// competing transition also ends the code's usable life.
func (r *AccessCodeRepository) MarkExpired(ctx context.Context, codeID string) error {
	query := `
		UPDATE access_codes
		SET status = $2
		WHERE id = $1 AND status = $3
	`
	_, err := r.db.ExecContext(ctx, query, codeID, models.AccessCodeStatusExpired, models.AccessCodeStatusValid)
	return err
}

// Revoke invalidates a still-valid code. Returns false when the code wasn't in the
// valid state (already used, expired, or revoked).
func (r *AccessCodeRepository) Revoke(ctx context.Context, codeID string) (bool, error) {
	query := `
		UPDATE access_codes
		SET status = $2
		WHERE id = $1 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, codeID, models.AccessCodeStatusRevoked, models.AccessCodeStatusValid)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// RedeemForNewUser creates the account a valid code pays for. One transaction: the
// user row is inserted, then the code is consumed with a conditional update. Zero
// rows affected means another redemption won the race (or an admin revoked the code
// mid-flight); the transaction rolls back and ErrCodeConflict is returned.
func (r *AccessCodeRepository) RedeemForNewUser(ctx context.Context, codeID string, user *models.User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	insertUser := `
		INSERT INTO users (id, pin_hash, role, status, plan_id, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.ExecContext(ctx, insertUser,
		user.ID,
		user.PINHash,
		user.Role,
		user.Status,
		user.PlanID,
		user.DisplayName,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	consumeCode := `
		UPDATE access_codes
		SET status = $2, user_id = $3, used_at = $4, current_uses = current_uses + 1
		WHERE id = $1 AND status = $5 AND current_uses < max_activations
	`
	result, err := tx.ExecContext(ctx, consumeCode,
		codeID,
		models.AccessCodeStatusUsed,
		user.ID,
		time.Now(),
		models.AccessCodeStatusValid,
	)
	if err != nil {
		return fmt.Errorf("failed to consume access code: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCodeConflict
	}

	return tx.Commit()
}

// ListAccessCodes retrieves codes with optional status and source filters, newest
// first, plus the total count for pagination
func (r *AccessCodeRepository) ListAccessCodes(ctx context.Context, status, source string, limit, offset int) ([]*models.AccessCode, int, error) {
	baseWhere := ""
	args := []interface{}{}
	paramIndex := 1

	if status != "" {
		baseWhere += fmt.Sprintf(" AND status = $%d", paramIndex)
		args = append(args, status)
		paramIndex++
	}
	if source != "" {
		baseWhere += fmt.Sprintf(" AND source = $%d", paramIndex)
		args = append(args, source)
		paramIndex++
	}

	countQuery := `SELECT COUNT(*) FROM access_codes WHERE 1=1` + baseWhere
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, code, source, status, max_activations, current_uses, expires_at, user_id, used_at, created_at
		FROM access_codes
		WHERE 1=1` + baseWhere + fmt.Sprintf(`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	codes := make([]*models.AccessCode, 0)
	for rows.Next() {
		ac := &models.AccessCode{}
		err := rows.Scan(
			&ac.ID,
			&ac.Code,
			&ac.Source,
			&ac.Status,
			&ac.MaxActivations,
			&ac.CurrentUses,
			&ac.ExpiresAt,
			&ac.UserID,
			&ac.UsedAt,
			&ac.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		codes = append(codes, ac)
	}

	return codes, total, rows.Err()
}
