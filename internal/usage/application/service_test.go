package application

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand"
	"strings"
	"testing"
	"time"

	alerts "waterwatch/internal/alerts/domain"
	usage "waterwatch/internal/usage/domain"
)

type stubReadingStore struct {
	readings  []usage.Reading
	createErr error
	meanErr   error
	recentErr error
	totals    usage.UsageTotals
	months    map[string]float64
}

func (s *stubReadingStore) Create(_ context.Context, reading *usage.Reading) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.readings = append([]usage.Reading{*reading}, s.readings...)
	return nil
}

func (s *stubReadingStore) MeanUsage(_ context.Context, _ string) (*float64, error) {
	if s.meanErr != nil {
		return nil, s.meanErr
	}
	if len(s.readings) == 0 {
		return nil, nil
	}
	var sum float64
	for _, r := range s.readings {
		sum += r.Usage
	}
	mean := sum / float64(len(s.readings))
	return &mean, nil
}

func (s *stubReadingStore) RecentByUser(_ context.Context, _ string, limit int) ([]usage.Reading, error) {
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	if limit <= 0 || limit > len(s.readings) {
		limit = len(s.readings)
	}
	out := make([]usage.Reading, limit)
	copy(out, s.readings[:limit])
	return out, nil
}

func (s *stubReadingStore) ListByUser(_ context.Context, _ string, since time.Time, limit int) ([]usage.Reading, error) {
	var out []usage.Reading
	for _, r := range s.readings {
		if !since.IsZero() && r.Timestamp.Before(since) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubReadingStore) Totals(_ context.Context, _ string) (*usage.UsageTotals, error) {
	totals := s.totals
	return &totals, nil
}

func (s *stubReadingStore) MonthUsage(_ context.Context, _ string, year int, month time.Month) (float64, error) {
	if s.months == nil {
		return 0, nil
	}
	key := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
	return s.months[key], nil
}

type stubEmitter struct {
	calls []usage.Diagnosis
	err   error
}

func (e *stubEmitter) EmitForDiagnosis(_ context.Context, _ string, diagnosis usage.Diagnosis) ([]alerts.Alert, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.calls = append(e.calls, diagnosis)
	return nil, nil
}

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestService(t *testing.T, store *stubReadingStore, opts ...ServiceOption) *Service {
	t.Helper()
	service, err := NewService(store, DefaultDetectionConfig(), discardLogger(), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func seedHistory(store *stubReadingStore, values []float64, at time.Time) {
	for i, v := range values {
		store.readings = append(store.readings, usage.Reading{
			ID:        usage.NewReadingID(),
			UserID:    "user-1",
			Usage:     v,
			Category:  usage.CategoryNormal,
			Timestamp: at.AddDate(0, 0, -i),
			CreatedAt: at,
		})
	}
}

func TestIngestRejectsNonPositiveUsage(t *testing.T) {
	store := &stubReadingStore{}
	service := newTestService(t, store)

	for _, value := range []float64{0, -5} {
		if _, err := service.Ingest(context.Background(), "user-1", value, time.Time{}, ""); !errors.Is(err, usage.ErrInvalidUsage) {
			t.Fatalf("value %v: err = %v, want ErrInvalidUsage", value, err)
		}
	}
	if len(store.readings) != 0 {
		t.Fatalf("stored %d readings, want 0", len(store.readings))
	}
}

func TestIngestFirstReadingUsesDefaultBaseline(t *testing.T) {
	store := &stubReadingStore{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	service := newTestService(t, store, WithClock(stubClock{now: now}))

	// 150 is not > 100*1.5, so the first reading lands in Normal.
	result, err := service.Ingest(context.Background(), "user-1", 150, time.Time{}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Reading.Category != usage.CategoryNormal {
		t.Errorf("category = %s, want Normal", result.Reading.Category)
	}
	if result.Diagnosis.HistoricalAvg != 100 {
		t.Errorf("historical avg = %v, want 100", result.Diagnosis.HistoricalAvg)
	}

	// 201 exceeds twice the default baseline.
	store.readings = nil
	result, err = service.Ingest(context.Background(), "user-1", 201, time.Time{}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Reading.Category != usage.CategoryCritical {
		t.Errorf("category = %s, want Critical", result.Reading.Category)
	}
}

func TestIngestClassifiesAgainstHistoricalMean(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &stubReadingStore{}
	seedHistory(store, []float64{10, 10, 10, 10}, now.AddDate(0, 0, -1))
	service := newTestService(t, store, WithClock(stubClock{now: now}))

	result, err := service.Ingest(context.Background(), "user-1", 18, time.Time{}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	// Mean is 10, so 18 > 10*1.5 lands in High.
	if result.Reading.Category != usage.CategoryHigh {
		t.Errorf("category = %s, want High", result.Reading.Category)
	}
}

func TestIngestEmitsAlertsOnSpike(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &stubReadingStore{}
	seedHistory(store, []float64{100, 100, 100}, now.AddDate(0, 0, -1))
	emitter := &stubEmitter{}
	service := newTestService(t, store, WithClock(stubClock{now: now}), WithAlertEmitter(emitter))

	result, err := service.Ingest(context.Background(), "user-1", 400, time.Time{}, "Kitchen")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Diagnosis.Severity != usage.SeverityCritical {
		t.Fatalf("severity = %s, want critical", result.Diagnosis.Severity)
	}
	found := false
	for _, issue := range result.Diagnosis.Issues {
		if strings.Contains(issue, "Sudden spike in water usage: 400.00L (avg: 100.00L)") {
			found = true
		}
	}
	if !found {
		t.Fatalf("spike finding missing: %v", result.Diagnosis.Issues)
	}
	if len(emitter.calls) != 1 {
		t.Fatalf("emitter called %d times, want 1", len(emitter.calls))
	}
	if result.Reading.Location != "Kitchen" {
		t.Errorf("location = %q", result.Reading.Location)
	}
}

func TestIngestQuietDiagnosisSkipsEmitter(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &stubReadingStore{}
	seedHistory(store, []float64{100, 100, 100}, now.AddDate(0, 0, -1))
	emitter := &stubEmitter{err: errors.New("should not be called")}
	service := newTestService(t, store, WithClock(stubClock{now: now}), WithAlertEmitter(emitter))

	result, err := service.Ingest(context.Background(), "user-1", 105, time.Time{}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Diagnosis.HasIssues {
		t.Fatalf("unexpected issues: %v", result.Diagnosis.Issues)
	}
	if result.Diagnosis.Severity != usage.SeverityLow {
		t.Errorf("severity = %s, want low", result.Diagnosis.Severity)
	}
}

func TestIngestPersistFailureRaisesNoAlerts(t *testing.T) {
	store := &stubReadingStore{createErr: errors.New("db down")}
	emitter := &stubEmitter{}
	service := newTestService(t, store, WithAlertEmitter(emitter))

	if _, err := service.Ingest(context.Background(), "user-1", 500, time.Time{}, ""); err == nil {
		t.Fatal("expected error from failing store")
	}
	if len(emitter.calls) != 0 {
		t.Fatalf("emitter called %d times, want 0", len(emitter.calls))
	}
}

func TestIngestWindowFailureSurfacesAfterPersist(t *testing.T) {
	store := &stubReadingStore{recentErr: errors.New("db down")}
	service := newTestService(t, store)

	_, err := service.Ingest(context.Background(), "user-1", 50, time.Time{}, "")
	if err == nil {
		t.Fatal("expected error from failing window query")
	}
	// The reading itself stays stored.
	if len(store.readings) != 1 {
		t.Fatalf("stored %d readings, want 1", len(store.readings))
	}
}

func TestIngestAlertFailureReturnsStoredReading(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &stubReadingStore{}
	seedHistory(store, []float64{100, 100, 100}, now.AddDate(0, 0, -1))
	emitter := &stubEmitter{err: errors.New("notify down")}
	service := newTestService(t, store, WithClock(stubClock{now: now}), WithAlertEmitter(emitter))

	result, err := service.Ingest(context.Background(), "user-1", 400, time.Time{}, "")
	if err == nil {
		t.Fatal("expected error from failing emitter")
	}
	if result == nil {
		t.Fatal("expected partial result alongside the error")
	}
	if result.Reading.Usage != 400 {
		t.Errorf("reading usage = %.2f, want 400", result.Reading.Usage)
	}
	if !result.Diagnosis.HasIssues {
		t.Errorf("diagnosis issues missing: %+v", result.Diagnosis)
	}
	// The reading itself stays stored.
	if len(store.readings) != 4 {
		t.Fatalf("stored %d readings, want 4", len(store.readings))
	}
}

func TestStatsTrend(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		current  float64
		previous float64
		want     string
	}{
		{"increasing", 250, 200, TrendIncreasing},
		{"decreasing", 150, 200, TrendDecreasing},
		{"stable within band", 210, 200, TrendStable},
		{"no previous month", 100, 0, TrendStable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &stubReadingStore{
				totals: usage.UsageTotals{TotalUsage: 1000, TotalRecords: 40, FirstReading: now.AddDate(0, 0, -10)},
				months: map[string]float64{
					"2026-03": tc.current,
					"2026-02": tc.previous,
				},
			}
			service := newTestService(t, store, WithClock(stubClock{now: now}))
			stats, err := service.Stats(context.Background(), "user-1")
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.Trend != tc.want {
				t.Errorf("trend = %s, want %s", stats.Trend, tc.want)
			}
			if stats.AverageDaily != 100 {
				t.Errorf("average daily = %v, want 100", stats.AverageDaily)
			}
		})
	}
}

func TestSimulatorSeedsHistory(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	store := &stubReadingStore{}
	sim, err := NewSimulator(store,
		WithRand(rand.New(rand.NewSource(1))),
		WithSimulatorClock(stubClock{now: now}))
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}

	created, err := sim.Seed(context.Background(), "user-1", 7)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if created != len(store.readings) {
		t.Fatalf("created = %d, stored = %d", created, len(store.readings))
	}
	if created != 28 {
		t.Fatalf("created = %d readings, want 28", created)
	}
	for _, r := range store.readings {
		if r.Usage <= 0 {
			t.Errorf("non-positive usage %v", r.Usage)
		}
		if r.Location != simulatorLocation {
			t.Errorf("location = %q", r.Location)
		}
		if r.Timestamp.After(now) {
			t.Errorf("future timestamp %v", r.Timestamp)
		}
	}
}
