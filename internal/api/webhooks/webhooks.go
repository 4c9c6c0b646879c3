// Package webhooks handles inbound webhook deliveries: completion callbacks
// from the generation engine and events from the payment processor. Deliveries
// are authenticated with a shared secret compared in constant time, recorded in
// the webhook log before any processing, and answered 200 even when duplicated
// so senders stop retrying.
package webhooks

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
	"github.com/oneira/oneira/internal/generation"
	"github.com/oneira/oneira/internal/telemetry"
)

// secretHeader carries the shared webhook secret on inbound deliveries
const secretHeader = "X-Webhook-Secret"

// WebhookHandlers contains handlers for inbound webhook deliveries
type WebhookHandlers struct {
	cfg          *config.Config
	logRepo      *repositories.WebhookLogRepository
	orchestrator *generation.Orchestrator
}

// NewWebhookHandlers creates webhook handlers with their dependencies
func NewWebhookHandlers(cfg *config.Config, db *sql.DB, orch *generation.Orchestrator) *WebhookHandlers {
	return &WebhookHandlers{
		cfg:          cfg,
		logRepo:      repositories.NewWebhookLogRepository(db),
		orchestrator: orch,
	}
}

// authorize verifies the shared secret header in constant time. A missing
// configured secret disables the endpoint entirely; it reads as not found so
// probing cannot tell a disabled endpoint from an unregistered route.
func (h *WebhookHandlers) authorize(c *gin.Context, provider, secret string) bool {
	if secret == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return false
	}
	if subtle.ConstantTimeCompare([]byte(c.GetHeader(secretHeader)), []byte(secret)) != 1 {
		telemetry.WebhookDeliveriesTotal.WithLabelValues(provider, "rejected").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
		return false
	}
	return true
}

// recordDelivery writes the delivery log row. Failures are logged and
// swallowed; a broken log table must not make the sender retry forever.
func (h *WebhookHandlers) recordDelivery(c *gin.Context, log *models.WebhookLog) *models.WebhookLog {
	if err := h.logRepo.CreateWebhookLog(c.Request.Context(), log); err != nil {
		slog.Error("failed to record webhook delivery", "provider", log.Provider, "error", err)
		return nil
	}
	return log
}

// markDelivery updates the delivery row's final state, best effort.
func (h *WebhookHandlers) markDelivery(c *gin.Context, log *models.WebhookLog, state models.WebhookState, errMsg *string) {
	if log == nil {
		return
	}
	if err := h.logRepo.MarkProcessed(c.Request.Context(), log.ID, state, errMsg); err != nil {
		slog.Warn("failed to update webhook delivery log", "log_id", log.ID, "error", err)
	}
}

// GenerationEvent is the engine's completion callback payload. The trace id
// is the only correlation key the engine knows; job ids never cross the wire.
type GenerationEvent struct {
	TraceID     string                   `json:"traceId"`
	Status      string                   `json:"status"`
	Images      []generation.EngineImage `json:"images"`
	Error       string                   `json:"error"`
	CostEUR     *float64                 `json:"costEur"`
	CostDetails map[string]interface{}   `json:"costDetails"`
}

// GenerationWebhookHandler applies an engine completion callback to its job.
// Duplicate deliveries answer 200 so the engine stops retrying.
// POST /v1/webhooks/generation
func (h *WebhookHandlers) GenerationWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authorize(c, models.WebhookProviderEngine, h.cfg.Engine.WebhookSecret) {
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			telemetry.WebhookDeliveriesTotal.WithLabelValues(models.WebhookProviderEngine, "malformed").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read payload"})
			return
		}

		var event GenerationEvent
		if err := json.Unmarshal(body, &event); err != nil || event.TraceID == "" || event.Status == "" {
			failMsg := "malformed payload: traceId and status are required"
			h.markDelivery(c, h.recordDelivery(c, &models.WebhookLog{
				Provider:  models.WebhookProviderEngine,
				EventType: "generation.malformed",
				Payload:   body,
			}), models.WebhookStateFailed, &failMsg)
			telemetry.WebhookDeliveriesTotal.WithLabelValues(models.WebhookProviderEngine, "malformed").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": failMsg})
			return
		}

		wlog := h.recordDelivery(c, &models.WebhookLog{
			Provider:  models.WebhookProviderEngine,
			EventType: "generation." + event.Status,
			Payload:   body,
		})

		outcome, err := h.orchestrator.HandleWebhook(c.Request.Context(), event.TraceID, event.Status, &generation.EngineResult{
			Images:      event.Images,
			Error:       event.Error,
			CostEUR:     event.CostEUR,
			CostDetails: event.CostDetails,
		})
		if err != nil {
			msg := err.Error()
			h.markDelivery(c, wlog, models.WebhookStateFailed, &msg)
			switch {
			case errors.Is(err, generation.ErrJobNotFound):
				telemetry.WebhookDeliveriesTotal.WithLabelValues(models.WebhookProviderEngine, "unknown_trace").Inc()
				c.JSON(http.StatusNotFound, gin.H{"error": "no job for trace id"})
			case errors.Is(err, generation.ErrUnknownStatus):
				telemetry.WebhookDeliveriesTotal.WithLabelValues(models.WebhookProviderEngine, "malformed").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			default:
				telemetry.WebhookDeliveriesTotal.WithLabelValues(models.WebhookProviderEngine, "error").Inc()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
			}
			return
		}

		state := models.WebhookStateCompleted
		if outcome == generation.OutcomeSkipped {
			state = models.WebhookStateSkipped
		}
		h.markDelivery(c, wlog, state, nil)
		telemetry.WebhookDeliveriesTotal.WithLabelValues(models.WebhookProviderEngine, string(outcome)).Inc()

		c.JSON(http.StatusOK, gin.H{"success": true, "outcome": outcome})
	}
}

// paymentEvent pulls the event type out of a processor payload, best effort.
type paymentEvent struct {
	Type string `json:"type"`
}

// PaymentsWebhookHandler records payment processor events. Nothing consumes
// them yet; plan changes are applied manually by an operator after checking
// the log. Acknowledged with 200 so the processor does not retry.
// POST /v1/webhooks/payments
func (h *WebhookHandlers) PaymentsWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authorize(c, models.WebhookProviderPayments, h.cfg.Payments.WebhookSecret) {
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			telemetry.WebhookDeliveriesTotal.WithLabelValues(models.WebhookProviderPayments, "malformed").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read payload"})
			return
		}

		eventType := "payment.event"
		var event paymentEvent
		if err := json.Unmarshal(body, &event); err == nil && event.Type != "" {
			eventType = event.Type
		}

		h.recordDelivery(c, &models.WebhookLog{
			Provider:  models.WebhookProviderPayments,
			EventType: eventType,
			Payload:   body,
		})
		telemetry.WebhookDeliveriesTotal.WithLabelValues(models.WebhookProviderPayments, "logged").Inc()

		slog.Info("payment webhook received", "event_type", eventType, "bytes", len(body))
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
