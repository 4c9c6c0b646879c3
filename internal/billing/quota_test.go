package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oneira/oneira/internal/db/models"
)

// stubJobCounter returns a fixed count and records the window start it was
// asked about.
type stubJobCounter struct {
	count int
	err   error
	since time.Time
}

func (s *stubJobCounter) CountJobsForUserSince(_ context.Context, _ string, since time.Time) (int, error) {
	s.since = since
	return s.count, s.err
}

type stubPhotoCounter struct {
	count int
	err   error
}

func (s *stubPhotoCounter) CountPhotosByUser(_ context.Context, _ string) (int, error) {
	return s.count, s.err
}

func testUser(planID string) *models.User {
	return &models.User{ID: "usr-1", PlanID: planID, Status: models.UserStatusActive}
}

func newTestQuota(t *testing.T, jobs *stubJobCounter, photos *stubPhotoCounter) *Quota {
	t.Helper()
	c, err := NewCatalogue(testPlansConfig())
	if err != nil {
		t.Fatal("NewCatalogue:", err)
	}
	return NewQuota(c, jobs, photos)
}

// ---------------------------------------------------------------------------
// MonthStart
// ---------------------------------------------------------------------------

func TestMonthStart(t *testing.T) {
	in := time.Date(2026, time.August, 25, 13, 37, 42, 0, time.UTC)
	got := MonthStart(in)
	want := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("MonthStart(%v) = %v, want %v", in, got, want)
	}
}

func TestMonthStart_NormalizesZone(t *testing.T) {
	// 00:30 on Sep 1 in UTC+2 is still Aug 31 in UTC; the window must be
	// computed in UTC so all replicas agree.
	zone := time.FixedZone("CEST", 2*60*60)
	in := time.Date(2026, time.September, 1, 0, 30, 0, 0, zone)
	got := MonthStart(in)
	want := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("MonthStart(%v) = %v, want %v", in, got, want)
	}
}

// ---------------------------------------------------------------------------
// CheckGeneration
// ---------------------------------------------------------------------------

func TestCheckGeneration_UnderAllowance(t *testing.T) {
	jobs := &stubJobCounter{count: 2} // free plan allows 3
	q := newTestQuota(t, jobs, &stubPhotoCounter{})

	if err := q.CheckGeneration(context.Background(), testUser("free")); err != nil {
		t.Errorf("CheckGeneration() error: %v, want nil", err)
	}

	// The window asked about must be the start of the current calendar month.
	if want := MonthStart(time.Now()); !jobs.since.Equal(want) {
		t.Errorf("counted since %v, want %v", jobs.since, want)
	}
}

func TestCheckGeneration_AtAllowance(t *testing.T) {
	q := newTestQuota(t, &stubJobCounter{count: 3}, &stubPhotoCounter{})

	err := q.CheckGeneration(context.Background(), testUser("free"))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("CheckGeneration() error = %v, want ErrQuotaExceeded", err)
	}
}

func TestCheckGeneration_UnlimitedPlanSkipsCount(t *testing.T) {
	jobs := &stubJobCounter{err: errors.New("must not be called")}
	q := newTestQuota(t, jobs, &stubPhotoCounter{})

	if err := q.CheckGeneration(context.Background(), testUser("studio")); err != nil {
		t.Errorf("CheckGeneration() on unlimited plan error: %v, want nil", err)
	}
}

func TestCheckGeneration_UnknownPlanUsesDefault(t *testing.T) {
	q := newTestQuota(t, &stubJobCounter{count: 3}, &stubPhotoCounter{})

	// Unknown plan resolves to the default (free, allowance 3) which is used up.
	err := q.CheckGeneration(context.Background(), testUser("removed-plan"))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("CheckGeneration() error = %v, want ErrQuotaExceeded via default plan", err)
	}
}

func TestCheckGeneration_CounterError(t *testing.T) {
	q := newTestQuota(t, &stubJobCounter{err: errors.New("db down")}, &stubPhotoCounter{})

	err := q.CheckGeneration(context.Background(), testUser("free"))
	if err == nil {
		t.Fatal("CheckGeneration() = nil error, want wrapped counter error")
	}
	if errors.Is(err, ErrQuotaExceeded) {
		t.Error("counter failure must not present as quota exhaustion")
	}
}

// ---------------------------------------------------------------------------
// RemainingGenerations
// ---------------------------------------------------------------------------

func TestRemainingGenerations(t *testing.T) {
	q := newTestQuota(t, &stubJobCounter{count: 1}, &stubPhotoCounter{})

	got, err := q.RemainingGenerations(context.Background(), testUser("free"))
	if err != nil {
		t.Fatalf("RemainingGenerations() error: %v", err)
	}
	if got != 2 {
		t.Errorf("RemainingGenerations() = %d, want 2", got)
	}
}

func TestRemainingGenerations_Unlimited(t *testing.T) {
	q := newTestQuota(t, &stubJobCounter{}, &stubPhotoCounter{})

	got, err := q.RemainingGenerations(context.Background(), testUser("studio"))
	if err != nil {
		t.Fatalf("RemainingGenerations() error: %v", err)
	}
	if got != -1 {
		t.Errorf("RemainingGenerations() = %d, want -1 for unlimited", got)
	}
}

func TestRemainingGenerations_NeverNegative(t *testing.T) {
	// Usage can exceed the allowance when the plan was downgraded mid-month.
	q := newTestQuota(t, &stubJobCounter{count: 7}, &stubPhotoCounter{})

	got, err := q.RemainingGenerations(context.Background(), testUser("free"))
	if err != nil {
		t.Fatalf("RemainingGenerations() error: %v", err)
	}
	if got != 0 {
		t.Errorf("RemainingGenerations() = %d, want 0", got)
	}
}

// ---------------------------------------------------------------------------
// CheckPhotoUpload
// ---------------------------------------------------------------------------

func TestCheckPhotoUpload(t *testing.T) {
	q := newTestQuota(t, &stubJobCounter{}, &stubPhotoCounter{count: 9}) // free cap 10

	if err := q.CheckPhotoUpload(context.Background(), testUser("free")); err != nil {
		t.Errorf("CheckPhotoUpload() error: %v, want nil", err)
	}
}

func TestCheckPhotoUpload_AtCap(t *testing.T) {
	q := newTestQuota(t, &stubJobCounter{}, &stubPhotoCounter{count: 10})

	err := q.CheckPhotoUpload(context.Background(), testUser("free"))
	if !errors.Is(err, ErrPhotoLimitReached) {
		t.Errorf("CheckPhotoUpload() error = %v, want ErrPhotoLimitReached", err)
	}
}

func TestCheckPhotoUpload_UnlimitedCap(t *testing.T) {
	photos := &stubPhotoCounter{err: errors.New("must not be called")}
	q := newTestQuota(t, &stubJobCounter{}, photos)

	if err := q.CheckPhotoUpload(context.Background(), testUser("studio")); err != nil {
		t.Errorf("CheckPhotoUpload() on uncapped plan error: %v, want nil", err)
	}
}
