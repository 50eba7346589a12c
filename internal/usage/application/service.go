package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	alerts "waterwatch/internal/alerts/domain"
	"waterwatch/internal/observability/metrics"
	usage "waterwatch/internal/usage/domain"
)

// ReadingStore persists and aggregates usage readings.
type ReadingStore interface {
	Create(ctx context.Context, reading *usage.Reading) error
	MeanUsage(ctx context.Context, userID string) (*float64, error)
	RecentByUser(ctx context.Context, userID string, limit int) ([]usage.Reading, error)
	ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]usage.Reading, error)
	Totals(ctx context.Context, userID string) (*usage.UsageTotals, error)
	MonthUsage(ctx context.Context, userID string, year int, month time.Month) (float64, error)
}

// AlertEmitter raises alerts from a diagnosis.
type AlertEmitter interface {
	EmitForDiagnosis(ctx context.Context, userID string, diagnosis usage.Diagnosis) ([]alerts.Alert, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// IngestResult is the response of one ingestion: the stored reading plus
// the diagnosis computed from it.
type IngestResult struct {
	Reading   usage.Reading   `json:"reading"`
	Diagnosis usage.Diagnosis `json:"diagnosis"`
}

// Service orchestrates usage ingestion, history queries and stats.
type Service struct {
	store    ReadingStore
	emitter  AlertEmitter
	detector usage.Detector
	config   DetectionConfig
	logger   *log.Logger
	clock    Clock
}

// ServiceOption customizes the usage service.
type ServiceOption func(*Service)

// WithAlertEmitter attaches an alert emitter.
func WithAlertEmitter(emitter AlertEmitter) ServiceOption {
	return func(s *Service) {
		s.emitter = emitter
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a usage service.
func NewService(store ReadingStore, config DetectionConfig, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("usage: nil store")
	}
	if logger == nil {
		return nil, errors.New("usage: nil logger")
	}
	config = config.normalized()
	service := &Service{
		store:    store,
		detector: config.Detector(),
		config:   config,
		logger:   logger,
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Ingest records one reading and runs anomaly analysis over the recent
// window. The reading is classified against the user's historical mean
// (or the configured default for first-time users) and stays stored even
// when a later step fails. Concurrent ingestions for one user may both
// analyze against the pre-insert history; that race is accepted.
func (s *Service) Ingest(ctx context.Context, userID string, value float64, at time.Time, location string) (*IngestResult, error) {
	if s == nil {
		return nil, errors.New("usage: nil service")
	}
	start := time.Now()
	if userID == "" {
		metrics.IncIngestError("missing_user")
		return nil, errors.New("usage: user id required")
	}
	if value <= 0 {
		metrics.IncIngestError("invalid_usage")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return nil, usage.ErrInvalidUsage
	}

	mean, err := s.store.MeanUsage(ctx, userID)
	if err != nil {
		metrics.IncIngestError("mean_query")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return nil, fmt.Errorf("usage: historical mean: %w", err)
	}
	baseline := s.config.DefaultBaseline
	if mean != nil {
		baseline = *mean
	}
	baseline = s.detector.ClampBaseline(baseline)

	now := s.clock.Now().UTC()
	if at.IsZero() {
		at = now
	}
	reading := &usage.Reading{
		ID:        usage.NewReadingID(),
		UserID:    userID,
		Usage:     value,
		Category:  usage.Classify(value, baseline),
		Timestamp: at.UTC(),
		Location:  location,
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, reading); err != nil {
		metrics.IncIngestError("persist")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return nil, fmt.Errorf("usage: store reading: %w", err)
	}

	window, err := s.store.RecentByUser(ctx, userID, s.config.WindowSize)
	if err != nil {
		// The reading is already durable; the caller sees the failure.
		metrics.IncIngestError("window_query")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return nil, fmt.Errorf("usage: recent window: %w", err)
	}

	diagnosis := s.detector.Analyze(value, window, baseline, now)
	metrics.AddDetectionFindings(string(diagnosis.Severity), len(diagnosis.Issues))
	result := &IngestResult{Reading: *reading, Diagnosis: diagnosis}

	if s.emitter != nil && diagnosis.HasIssues {
		if _, err := s.emitter.EmitForDiagnosis(ctx, userID, diagnosis); err != nil {
			// The reading and diagnosis are still returned so the caller
			// sees what was stored before alerting failed.
			metrics.IncIngestError("alert_emit")
			metrics.ObserveIngest(metrics.ResultError, time.Since(start))
			return result, fmt.Errorf("usage: emit alerts: %w", err)
		}
	}

	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
	return result, nil
}

// History returns a user's readings, newest first. days limits the range
// when positive; limit caps the result size.
func (s *Service) History(ctx context.Context, userID string, days, limit int) ([]usage.Reading, error) {
	if s == nil {
		return nil, errors.New("usage: nil service")
	}
	if userID == "" {
		return nil, errors.New("usage: user id required")
	}
	var since time.Time
	if days > 0 {
		since = s.clock.Now().UTC().AddDate(0, 0, -days)
	}
	return s.store.ListByUser(ctx, userID, since, limit)
}

// Usage trend labels, compared month over month.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Stats summarizes a user's consumption.
type Stats struct {
	TotalUsage        float64   `json:"total_usage"`
	AverageDaily      float64   `json:"average_daily"`
	TotalRecords      int64     `json:"total_records"`
	CurrentMonthUsage float64   `json:"current_month_usage"`
	LastMonthUsage    float64   `json:"last_month_usage"`
	Trend             string    `json:"trend"`
	FirstReading      time.Time `json:"first_reading,omitempty"`
}

// Stats computes aggregate consumption figures for a user. The trend
// compares the current month to the previous one with a 10% dead band.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	if s == nil {
		return nil, errors.New("usage: nil service")
	}
	if userID == "" {
		return nil, errors.New("usage: user id required")
	}

	totals, err := s.store.Totals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("usage: totals: %w", err)
	}

	now := s.clock.Now().UTC()
	current, err := s.store.MonthUsage(ctx, userID, now.Year(), now.Month())
	if err != nil {
		return nil, fmt.Errorf("usage: current month: %w", err)
	}
	prevMonth := now.AddDate(0, -1, -now.Day()+1)
	previous, err := s.store.MonthUsage(ctx, userID, prevMonth.Year(), prevMonth.Month())
	if err != nil {
		return nil, fmt.Errorf("usage: previous month: %w", err)
	}

	stats := &Stats{
		TotalUsage:        totals.TotalUsage,
		TotalRecords:      totals.TotalRecords,
		CurrentMonthUsage: current,
		LastMonthUsage:    previous,
		Trend:             trendLabel(current, previous),
		FirstReading:      totals.FirstReading,
	}
	if totals.TotalRecords > 0 && !totals.FirstReading.IsZero() {
		days := now.Sub(totals.FirstReading).Hours() / 24
		if days < 1 {
			days = 1
		}
		stats.AverageDaily = totals.TotalUsage / days
	}
	return stats, nil
}

func trendLabel(current, previous float64) string {
	if previous <= 0 {
		return TrendStable
	}
	switch {
	case current > previous*1.1:
		return TrendIncreasing
	case current < previous*0.9:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
