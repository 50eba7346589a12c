package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	usage "waterwatch/internal/usage/domain"
)

// Report types and the ranges they cover.
const (
	TypeDaily   = "daily"
	TypeWeekly  = "weekly"
	TypeMonthly = "monthly"
)

// ErrUnknownType indicates an unsupported report type.
var ErrUnknownType = errors.New("reports: unknown report type")

// ReadingSource supplies readings for a report range.
type ReadingSource interface {
	ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]usage.Reading, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// UsageReport is the assembled content of one report.
type UsageReport struct {
	UserID         string
	Type           string
	From           time.Time
	To             time.Time
	Readings       []usage.Reading
	TotalUsage     float64
	AverageUsage   float64
	MaxUsage       float64
	CategoryCounts map[usage.Category]int
}

// Service assembles usage reports over a reading source.
type Service struct {
	readings ReadingSource
	clock    Clock
}

// ServiceOption customizes the report service.
type ServiceOption func(*Service)

// WithClock overrides the clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a report service.
func NewService(readings ReadingSource, opts ...ServiceOption) (*Service, error) {
	if readings == nil {
		return nil, errors.New("reports: nil reading source")
	}
	service := &Service{readings: readings, clock: systemClock{}}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// RangeDays maps a report type to its range in days.
func RangeDays(reportType string) (int, error) {
	switch reportType {
	case TypeDaily:
		return 1, nil
	case TypeWeekly:
		return 7, nil
	case TypeMonthly:
		return 30, nil
	default:
		return 0, ErrUnknownType
	}
}

// Build assembles a report for a user over the type's range.
func (s *Service) Build(ctx context.Context, userID, reportType string) (*UsageReport, error) {
	if s == nil {
		return nil, errors.New("reports: nil service")
	}
	if userID == "" {
		return nil, errors.New("reports: user id required")
	}
	days, err := RangeDays(reportType)
	if err != nil {
		return nil, err
	}

	to := s.clock.Now().UTC()
	from := to.AddDate(0, 0, -days)
	readings, err := s.readings.ListByUser(ctx, userID, from, 0)
	if err != nil {
		return nil, fmt.Errorf("reports: load readings: %w", err)
	}

	report := &UsageReport{
		UserID:         userID,
		Type:           reportType,
		From:           from,
		To:             to,
		Readings:       readings,
		CategoryCounts: make(map[usage.Category]int),
	}
	for _, r := range readings {
		report.TotalUsage += r.Usage
		if r.Usage > report.MaxUsage {
			report.MaxUsage = r.Usage
		}
		report.CategoryCounts[r.Category]++
	}
	if len(readings) > 0 {
		report.AverageUsage = report.TotalUsage / float64(len(readings))
	}
	return report, nil
}
