package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	issues "waterwatch/internal/issues/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service handles issue report lifecycle.
type Service struct {
	store issues.ReportRepository
	clock Clock
}

// ServiceOption customizes the issue service.
type ServiceOption func(*Service)

// WithClock overrides the clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs an issue service.
func NewService(store issues.ReportRepository, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("issues: nil store")
	}
	service := &Service{store: store, clock: systemClock{}}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create files a new pending report.
func (s *Service) Create(ctx context.Context, userID, description, urgency string) (*issues.Report, error) {
	if s == nil {
		return nil, errors.New("issues: nil service")
	}
	if userID == "" {
		return nil, errors.New("issues: user id required")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, errors.New("issues: description required")
	}
	if urgency == "" {
		urgency = issues.UrgencyLow
	}
	if !issues.ValidUrgency(urgency) {
		return nil, issues.ErrInvalidUrgency
	}

	report := &issues.Report{
		ID:          issues.NewReportID(),
		UserID:      userID,
		Description: description,
		Urgency:     urgency,
		Status:      issues.StatusPending,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.store.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("issues: create report: %w", err)
	}
	return report, nil
}

// ListByUser returns a user's own reports.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]issues.Report, error) {
	if s == nil {
		return nil, errors.New("issues: nil service")
	}
	if userID == "" {
		return nil, errors.New("issues: user id required")
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// ListAll returns reports across users, optionally filtered by status.
func (s *Service) ListAll(ctx context.Context, status string, limit int) ([]issues.Report, error) {
	if s == nil {
		return nil, errors.New("issues: nil service")
	}
	if status != "" && !issues.ValidStatus(status) {
		return nil, issues.ErrInvalidStatus
	}
	return s.store.List(ctx, status, limit)
}

// UpdateStatus transitions a report. Resolving stamps ResolvedAt;
// reopening clears it.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*issues.Report, error) {
	if s == nil {
		return nil, errors.New("issues: nil service")
	}
	if id == "" {
		return nil, errors.New("issues: report id required")
	}
	if !issues.ValidStatus(status) {
		return nil, issues.ErrInvalidStatus
	}

	report, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, issues.ErrNotFound
	}
	if report.Status == status {
		return report, nil
	}

	resolvedAt := time.Time{}
	if status == issues.StatusResolved {
		resolvedAt = s.clock.Now().UTC()
	}
	if err := s.store.UpdateStatus(ctx, report.ID, status, resolvedAt); err != nil {
		return nil, err
	}
	report.Status = status
	report.ResolvedAt = resolvedAt
	return report, nil
}
