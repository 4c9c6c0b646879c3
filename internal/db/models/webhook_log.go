// Package models - webhook_log.go defines the WebhookLog model recording every
// inbound webhook delivery and what became of it, so duplicate and rejected
// deliveries stay diagnosable after the fact.
package models

import (
	"encoding/json"
	"time"
)

// Webhook providers.
const (
	WebhookProviderEngine   = "engine"
	WebhookProviderPayments = "payments"
)

// WebhookState represents the processing outcome of a webhook delivery
type WebhookState string

// Webhook delivery states. "skipped" marks duplicate deliveries that were
// acknowledged without side effects.
const (
	WebhookStateReceived   WebhookState = "received"
	WebhookStateProcessing WebhookState = "processing"
	WebhookStateCompleted  WebhookState = "completed"
	WebhookStateFailed     WebhookState = "failed"
	WebhookStateSkipped    WebhookState = "skipped"
)

// WebhookLog represents one inbound webhook delivery
type WebhookLog struct {
	ID          string
	Provider    string // "engine" or "payments"
	EventType   string
	State       WebhookState
	Error       *string
	Payload     json.RawMessage // Raw request body as received
	CreatedAt   time.Time
	ProcessedAt *time.Time
}
