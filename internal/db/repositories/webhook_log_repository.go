// webhook_log_repository.go implements WebhookLogRepository. Every inbound delivery
// gets a row before any processing starts, so rejected and duplicate deliveries stay
// visible.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/oneira/oneira/internal/db/models"
)

// WebhookLogRepository handles webhook delivery log database operations
type WebhookLogRepository struct {
	db *sql.DB
}

// NewWebhookLogRepository creates a new WebhookLogRepository
func NewWebhookLogRepository(db *sql.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

// CreateWebhookLog records an inbound delivery in the received state
func (r *WebhookLogRepository) CreateWebhookLog(ctx context.Context, log *models.WebhookLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()
	if log.State == "" {
		log.State = models.WebhookStateReceived
	}

	query := `
		INSERT INTO webhook_logs (id, provider, event_type, state, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.Provider,
		log.EventType,
		log.State,
		[]byte(log.Payload),
		log.CreatedAt,
	)

	return err
}

// MarkProcessed records the delivery's final state and optional error
func (r *WebhookLogRepository) MarkProcessed(ctx context.Context, logID string, state models.WebhookState, errMsg *string) error {
	query := `
		UPDATE webhook_logs
		SET state = $2, error = $3, processed_at = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, logID, state, errMsg, time.Now())
	return err
}

// ListWebhookLogs retrieves recent deliveries for a provider, newest first
func (r *WebhookLogRepository) ListWebhookLogs(ctx context.Context, provider string, limit, offset int) ([]*models.WebhookLog, error) {
	query := `
		SELECT id, provider, event_type, state, error, payload, created_at, processed_at
		FROM webhook_logs
		WHERE provider = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, provider, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*models.WebhookLog, 0)
	for rows.Next() {
		log := &models.WebhookLog{}
		var payload []byte
		err := rows.Scan(
			&log.ID,
			&log.Provider,
			&log.EventType,
			&log.State,
			&log.Error,
			&payload,
			&log.CreatedAt,
			&log.ProcessedAt,
		)
		if err != nil {
			return nil, err
		}
		log.Payload = payload
		logs = append(logs, log)
	}

	return logs, rows.Err()
}
