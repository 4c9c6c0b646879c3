// Package audit exports audit entries to an external collector. The database copy
// written by repositories.AuditRepository is the system of record; the shipper sends
// a second copy to a SIEM or log aggregator so security review does not require
// production database access. Shipping is best-effort: a failed shipment is logged
// and dropped, never retried against the caller.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/safego"
)

// LogEntry is the wire form of one audit event.
type LogEntry struct {
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	UserID       string                 `json:"user_id,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	StatusCode   int                    `json:"status_code,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship queues an audit log entry for delivery
	Ship(ctx context.Context, entry *LogEntry) error
	// Close flushes pending entries and stops background work
	Close() error
}

// WebhookShipper POSTs audit entries to a collector endpoint as JSON batches.
type WebhookShipper struct {
	url     string
	headers map[string]string
	timeout time.Duration

	client    *http.Client
	batchSize int
	batchCh   chan *LogEntry
	batch     []*LogEntry
	batchMu   sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a shipper from the audit export configuration. The
// returned shipper batches entries and flushes on size or interval; with a batch
// size of zero every entry is sent as it arrives.
func NewWebhookShipper(cfg *config.AuditShipperConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("audit shipper url is required")
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ws := &WebhookShipper{
		url:       cfg.URL,
		headers:   cfg.Headers,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		batchSize: cfg.BatchSize,
		batchCh:   make(chan *LogEntry, 1000),
		batch:     make([]*LogEntry, 0),
		closeCh:   make(chan struct{}),
	}

	if ws.batchSize > 0 {
		flushInterval := time.Duration(cfg.FlushIntervalSecs) * time.Second
		if flushInterval == 0 {
			flushInterval = 5 * time.Second
		}
		safego.GoNamed("audit-shipper", func() {
			ws.processBatches(flushInterval)
		})
	}

	return ws, nil
}

// processBatches drains the queue, flushing when the batch fills or the interval
// elapses, and once more on close.
func (ws *WebhookShipper) processBatches(flushInterval time.Duration) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-ws.batchCh:
			ws.batchMu.Lock()
			ws.batch = append(ws.batch, entry)
			if len(ws.batch) >= ws.batchSize {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
		case <-ticker.C:
			ws.batchMu.Lock()
			if len(ws.batch) > 0 {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
		case <-ws.closeCh:
			ws.batchMu.Lock()
			if len(ws.batch) > 0 {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
			return
		}
	}
}

// flushBatch sends the current batch. Caller holds batchMu.
func (ws *WebhookShipper) flushBatch() {
	if len(ws.batch) == 0 {
		return
	}

	data, err := json.Marshal(ws.batch)
	if err != nil {
		slog.Error("failed to marshal audit batch", "error", err, "entries", len(ws.batch))
		ws.batch = ws.batch[:0]
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.timeout)
	defer cancel()

	if err := ws.sendRequest(ctx, data); err != nil {
		slog.Error("failed to ship audit batch", "error", err, "entries", len(ws.batch))
	}

	ws.batch = ws.batch[:0]
}

// Ship queues an entry for batched delivery, or sends it directly when batching is
// disabled or the queue is full.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.batchSize > 0 {
		select {
		case ws.batchCh <- entry:
			return nil
		default:
			// Queue full, send directly
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	return ws.sendRequest(ctx, data)
}

// sendRequest POSTs a JSON payload to the collector.
func (ws *WebhookShipper) sendRequest(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, "POST", ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send audit shipment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("audit collector returned status %d", resp.StatusCode)
	}

	return nil
}

// Close flushes any buffered entries and stops the batch processor.
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closeCh)
	})
	return nil
}
