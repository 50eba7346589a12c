package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	alerts "waterwatch/internal/alerts/domain"
	"waterwatch/internal/observability/metrics"
	usage "waterwatch/internal/usage/domain"
)

// AlertStore persists alerts.
type AlertStore interface {
	Create(ctx context.Context, alert *alerts.Alert) error
	GetByUser(ctx context.Context, userID, id string) (*alerts.Alert, error)
	ListByUser(ctx context.Context, userID, status string, limit int) ([]alerts.Alert, error)
	UpdateStatus(ctx context.Context, id, status string, resolvedAt time.Time) error
}

// AlertNotifier publishes alert lifecycle events.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// AlertEvent represents a lifecycle update.
type AlertEvent struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service handles alert creation and state transitions.
type Service struct {
	store    AlertStore
	notifier AlertNotifier
	clock    Clock
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs an alert service.
func NewService(store AlertStore, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("alerts: nil store")
	}
	service := &Service{store: store, clock: systemClock{}}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// EmitForDiagnosis creates one alert per diagnosis finding. Repeated
// ingestions with the same underlying problem produce repeated alerts;
// deduplication is intentionally absent.
func (s *Service) EmitForDiagnosis(ctx context.Context, userID string, diagnosis usage.Diagnosis) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if userID == "" {
		return nil, errors.New("alerts: user id required")
	}
	if !diagnosis.HasIssues {
		return nil, nil
	}
	batch := alerts.BuildAlerts(userID, diagnosis.Issues, string(diagnosis.Severity), s.clock.Now())
	for i := range batch {
		if err := s.store.Create(ctx, &batch[i]); err != nil {
			return batch[:i], fmt.Errorf("alerts: create alert: %w", err)
		}
		s.notify(ctx, "created", batch[i])
	}
	return batch, nil
}

// List returns a user's alerts, optionally filtered by status.
func (s *Service) List(ctx context.Context, userID, status string, limit int) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if userID == "" {
		return nil, errors.New("alerts: user id required")
	}
	if status != "" && !alerts.ValidStatus(status) {
		return nil, alerts.ErrInvalidStatus
	}
	return s.store.ListByUser(ctx, userID, status, limit)
}

// UpdateStatus transitions an alert owned by userID. Moving to resolved
// stamps ResolvedAt; moving a resolved alert back to new or read clears
// it (reopen).
func (s *Service) UpdateStatus(ctx context.Context, userID, id, status string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if userID == "" || id == "" {
		return nil, errors.New("alerts: user and alert id required")
	}
	if !alerts.ValidStatus(status) {
		return nil, alerts.ErrInvalidStatus
	}
	alert, err := s.store.GetByUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	if alert.Status == status {
		return alert, nil
	}

	resolvedAt := time.Time{}
	if status == alerts.StatusResolved {
		resolvedAt = s.clock.Now().UTC()
	}
	if err := s.store.UpdateStatus(ctx, alert.ID, status, resolvedAt); err != nil {
		return nil, err
	}
	alert.Status = status
	alert.ResolvedAt = resolvedAt
	s.notify(ctx, status, *alert)
	return alert, nil
}

func (s *Service) notify(ctx context.Context, eventType string, alert alerts.Alert) {
	if s == nil {
		return
	}
	metrics.IncAlertEvent(eventType)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, AlertEvent{Type: eventType, Alert: alert})
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
