// Package models - generation_job.go defines the GenerationJob model tracking one
// engine dispatch through its lifecycle. Terminal states are sticky: once a job is
// succeeded or failed it never transitions again, and completed_at is set exactly once.
package models

import "time"

// JobStatus represents the lifecycle state of a generation job
type JobStatus string

// Generation job statuses.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// GenerationJob represents one image-generation run for a dream
type GenerationJob struct {
	ID          string
	DreamID     string
	UserID      string
	TraceID     string // Correlates the engine dispatch with its webhook callbacks
	Status      JobStatus
	Progress    int    // 0-100, monotonically non-decreasing while running
	CurrentStep string // Human-readable phase ("preparing", "generating", ...)
	Error       *string
	ImageCount  int
	CostEUR     *float64               // Reported by the engine on success
	CostDetails map[string]interface{} // JSONB: engine cost breakdown
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
