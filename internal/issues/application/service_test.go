package application

import (
	"context"
	"errors"
	"testing"
	"time"

	issues "waterwatch/internal/issues/domain"
)

type memoryReportStore struct {
	reports map[string]*issues.Report
}

func newMemoryReportStore() *memoryReportStore {
	return &memoryReportStore{reports: make(map[string]*issues.Report)}
}

func (s *memoryReportStore) Create(_ context.Context, report *issues.Report) error {
	copied := *report
	s.reports[report.ID] = &copied
	return nil
}

func (s *memoryReportStore) Get(_ context.Context, id string) (*issues.Report, error) {
	report, ok := s.reports[id]
	if !ok {
		return nil, nil
	}
	copied := *report
	return &copied, nil
}

func (s *memoryReportStore) ListByUser(_ context.Context, userID string, _ int) ([]issues.Report, error) {
	var out []issues.Report
	for _, report := range s.reports {
		if report.UserID == userID {
			out = append(out, *report)
		}
	}
	return out, nil
}

func (s *memoryReportStore) List(_ context.Context, status string, _ int) ([]issues.Report, error) {
	var out []issues.Report
	for _, report := range s.reports {
		if status == "" || report.Status == status {
			out = append(out, *report)
		}
	}
	return out, nil
}

func (s *memoryReportStore) UpdateStatus(_ context.Context, id, status string, resolvedAt time.Time) error {
	report, ok := s.reports[id]
	if !ok {
		return issues.ErrNotFound
	}
	report.Status = status
	report.ResolvedAt = resolvedAt
	return nil
}

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

func TestCreateReport(t *testing.T) {
	store := newMemoryReportStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	service, err := NewService(store, WithClock(stubClock{now: now}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	report, err := service.Create(context.Background(), "user-1", "Meter shows impossible values", issues.UrgencyHigh)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if report.Status != issues.StatusPending {
		t.Errorf("status = %s, want Pending", report.Status)
	}
	if report.Urgency != issues.UrgencyHigh {
		t.Errorf("urgency = %s", report.Urgency)
	}
	if !report.CreatedAt.Equal(now) {
		t.Errorf("created at = %v", report.CreatedAt)
	}
}

func TestCreateReportDefaultsAndValidation(t *testing.T) {
	service, err := NewService(newMemoryReportStore())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	report, err := service.Create(ctx, "user-1", "leaky tap", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if report.Urgency != issues.UrgencyLow {
		t.Errorf("urgency = %s, want Low", report.Urgency)
	}

	if _, err := service.Create(ctx, "user-1", "   ", issues.UrgencyLow); err == nil {
		t.Fatal("expected error for blank description")
	}
	if _, err := service.Create(ctx, "user-1", "broken", "Catastrophic"); !errors.Is(err, issues.ErrInvalidUrgency) {
		t.Fatalf("err = %v, want ErrInvalidUrgency", err)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	store := newMemoryReportStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	service, err := NewService(store, WithClock(stubClock{now: now}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	report, err := service.Create(ctx, "user-1", "constant dripping", issues.UrgencyMedium)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	resolved, err := service.UpdateStatus(ctx, report.ID, issues.StatusResolved)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if resolved.Status != issues.StatusResolved || !resolved.ResolvedAt.Equal(now) {
		t.Fatalf("resolved = %+v", resolved)
	}

	reopened, err := service.UpdateStatus(ctx, report.ID, issues.StatusPending)
	if err != nil {
		t.Fatalf("UpdateStatus reopen: %v", err)
	}
	if !reopened.ResolvedAt.IsZero() {
		t.Fatalf("resolved at not cleared: %v", reopened.ResolvedAt)
	}

	if _, err := service.UpdateStatus(ctx, "missing", issues.StatusResolved); !errors.Is(err, issues.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := service.UpdateStatus(ctx, report.ID, "Snoozed"); !errors.Is(err, issues.ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}
