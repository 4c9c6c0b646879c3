// quota.go enforces the per-plan allowances: monthly generation count and total
// stored photos. Usage is always counted from the database rather than from a
// cached counter, so concurrent triggers can at worst overshoot by the number of
// in-flight requests, never drift permanently.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oneira/oneira/internal/db/models"
)

// ErrQuotaExceeded is returned when the user's plan allowance for the calendar
// month is exhausted.
var ErrQuotaExceeded = errors.New("monthly generation quota exceeded")

// ErrPhotoLimitReached is returned when the user's plan photo cap is reached.
var ErrPhotoLimitReached = errors.New("photo limit reached for plan")

// JobCounter counts generation jobs created since a point in time.
type JobCounter interface {
	CountJobsForUserSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// PhotoCounter counts a user's stored photos.
type PhotoCounter interface {
	CountPhotosByUser(ctx context.Context, userID string) (int, error)
}

// Quota checks plan allowances against actual usage.
type Quota struct {
	catalogue *Catalogue
	jobs      JobCounter
	photos    PhotoCounter
}

// NewQuota creates a quota checker backed by the given usage counters.
func NewQuota(catalogue *Catalogue, jobs JobCounter, photos PhotoCounter) *Quota {
	return &Quota{
		catalogue: catalogue,
		jobs:      jobs,
		photos:    photos,
	}
}

// MonthStart returns the first instant of t's calendar month in UTC. Quota
// windows are calendar months, not rolling 30-day windows.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CheckGeneration verifies the user may start another generation this month.
// Returns ErrQuotaExceeded when the allowance is used up; a 0 allowance means
// unlimited.
func (q *Quota) CheckGeneration(ctx context.Context, user *models.User) error {
	plan := q.catalogue.Resolve(user.PlanID)
	if plan.Unlimited() {
		return nil
	}

	used, err := q.jobs.CountJobsForUserSince(ctx, user.ID, MonthStart(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to count jobs for quota check: %w", err)
	}
	if used >= plan.MonthlyGenerations {
		return ErrQuotaExceeded
	}
	return nil
}

// RemainingGenerations returns how many generations the user has left this
// month. Unlimited plans return -1.
func (q *Quota) RemainingGenerations(ctx context.Context, user *models.User) (int, error) {
	plan := q.catalogue.Resolve(user.PlanID)
	if plan.Unlimited() {
		return -1, nil
	}

	used, err := q.jobs.CountJobsForUserSince(ctx, user.ID, MonthStart(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs for quota check: %w", err)
	}
	remaining := plan.MonthlyGenerations - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// CheckPhotoUpload verifies the user may store another photo. Returns
// ErrPhotoLimitReached when the plan cap is hit; a 0 cap means unlimited.
func (q *Quota) CheckPhotoUpload(ctx context.Context, user *models.User) error {
	plan := q.catalogue.Resolve(user.PlanID)
	if plan.MaxPhotos == 0 {
		return nil
	}

	count, err := q.photos.CountPhotosByUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to count photos for quota check: %w", err)
	}
	if count >= plan.MaxPhotos {
		return ErrPhotoLimitReached
	}
	return nil
}
