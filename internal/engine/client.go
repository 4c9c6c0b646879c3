// Package engine implements the HTTP client for the external AI generation
// engine. The engine receives a single dispatch call per job carrying the dream
// text, reject list, and signed photo URLs; it acknowledges with a 2xx and
// reports the outcome later through the generation webhook, correlated by trace
// id. The engine never receives storage credentials — only the short-lived
// signed URLs minted by the storage backend.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/telemetry"
)

// DreamSpec is the dream content sent to the engine.
type DreamSpec struct {
	Description string   `json:"description"`
	Reject      []string `json:"reject"`
}

// PhotoRef pairs a photo id with the signed URL the engine fetches it from.
type PhotoRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Options carries generation tuning parameters.
type Options struct {
	ImagesCount int `json:"imagesCount"`
}

// DispatchRequest is the payload of the single POST per generation job.
type DispatchRequest struct {
	TraceID    string     `json:"traceId"`
	Dream      DreamSpec  `json:"dream"`
	UserPhotos []PhotoRef `json:"userPhotos"`
	Options    Options    `json:"options"`
}

// APIError is returned when the engine answers with a non-2xx status. The
// response body is kept as the diagnostic recorded on the failed job.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("engine returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("engine returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the generation engine API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an engine client from configuration.
func NewClient(cfg *config.EngineConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Dispatch sends one generation request to the engine. A 2xx response means
// "accepted": the engine does the heavy work behind its own queue and reports
// back via webhook. Any other status is returned as an *APIError carrying the
// response body.
func (c *Client) Dispatch(ctx context.Context, req *DispatchRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	telemetry.EngineCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("engine dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Cap the diagnostic body; the engine should answer with a short
		// JSON error but a misconfigured proxy can return whole HTML pages.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	return nil
}
