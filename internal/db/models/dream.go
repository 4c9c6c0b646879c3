// Package models - dream.go defines the Dream model: a user's description of the
// video they want generated, plus negative-prompt terms and linked photos. Dreams use
// db tags and are scanned with sqlx; the reject list is stored as a JSONB array.
package models

import (
	"encoding/json"
	"time"
)

// Dream statuses.
const (
	DreamStatusDraft      = "draft"
	DreamStatusGenerating = "generating"
	DreamStatusReady      = "ready"
)

// Dream represents a dream to be rendered into images
type Dream struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	Reject      json.RawMessage `db:"reject" json:"reject"` // JSONB array of negative-prompt terms
	Style       *string         `db:"style" json:"style,omitempty"`
	Status      string          `db:"status" json:"status"`
	LastJobID   *string         `db:"last_job_id" json:"last_job_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// RejectTerms decodes the stored reject list. An empty or NULL column decodes to an
// empty slice.
func (d *Dream) RejectTerms() ([]string, error) {
	if len(d.Reject) == 0 {
		return []string{}, nil
	}
	var terms []string
	if err := json.Unmarshal(d.Reject, &terms); err != nil {
		return nil, err
	}
	if terms == nil {
		terms = []string{}
	}
	return terms, nil
}

// SetRejectTerms encodes the reject list for storage.
func (d *Dream) SetRejectTerms(terms []string) error {
	if terms == nil {
		terms = []string{}
	}
	data, err := json.Marshal(terms)
	if err != nil {
		return err
	}
	d.Reject = data
	return nil
}
