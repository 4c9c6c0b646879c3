// Package models - image_asset.go defines the ImageAsset model for images produced
// by succeeded generation jobs.
package models

import "time"

// Image asset sources.
const (
	ImageSourceAI = "ai"
)

// ImageAsset represents one generated image attached to a dream
type ImageAsset struct {
	ID        string
	DreamID   string
	JobID     string
	URL       string // Location reported by the engine
	Width     int
	Height    int
	Source    string // Always "ai" for engine output
	CreatedAt time.Time
}
