package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"waterwatch/internal/auth"
	usageapp "waterwatch/internal/usage/application"
	usage "waterwatch/internal/usage/domain"
)

type memoryReadingStore struct {
	readings []usage.Reading
}

func (s *memoryReadingStore) Create(_ context.Context, reading *usage.Reading) error {
	s.readings = append([]usage.Reading{*reading}, s.readings...)
	return nil
}

func (s *memoryReadingStore) MeanUsage(_ context.Context, _ string) (*float64, error) {
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

func (s *memoryReadingStore) RecentByUser(_ context.Context, _ string, limit int) ([]usage.Reading, error) {
	if limit <= 0 || limit > len(s.readings) {
		limit = len(s.readings)
	}
	out := make([]usage.Reading, limit)
	copy(out, s.readings[:limit])
	return out, nil
}

func (s *memoryReadingStore) ListByUser(_ context.Context, _ string, since time.Time, limit int) ([]usage.Reading, error) {
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

func (s *memoryReadingStore) Totals(_ context.Context, _ string) (*usage.UsageTotals, error) {
	totals := &usage.UsageTotals{TotalRecords: int64(len(s.readings))}
	for _, r := range s.readings {
		totals.TotalUsage += r.Usage
		if totals.FirstReading.IsZero() || r.Timestamp.Before(totals.FirstReading) {
			totals.FirstReading = r.Timestamp
		}
	}
	return totals, nil
}

func (s *memoryReadingStore) MonthUsage(_ context.Context, _ string, year int, month time.Month) (float64, error) {
	var total float64
	for _, r := range s.readings {
		if r.Timestamp.Year() == year && r.Timestamp.Month() == month {
			total += r.Usage
		}
	}
	return total, nil
}

func newTestRouter(t *testing.T, store *memoryReadingStore) *mux.Router {
	t.Helper()
	service, err := usageapp.NewService(store, usageapp.DefaultDetectionConfig(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	simulator, err := usageapp.NewSimulator(store)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	handler, err := NewHandler(service, simulator)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	router := mux.NewRouter()
	handler.Register(router)
	return router
}

func authedRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := auth.WithIdentity(req.Context(), "user-1", auth.RoleUser, "user@example.com")
	return req.WithContext(ctx)
}

func TestIngestEndpoint(t *testing.T) {
	store := &memoryReadingStore{}
	router := newTestRouter(t, store)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/usage", `{"usage": 42.5, "location": "Kitchen"}`))

	if resp.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	var result usageapp.IngestResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Reading.Usage != 42.5 || result.Reading.Location != "Kitchen" {
		t.Errorf("reading = %+v", result.Reading)
	}
	if result.Reading.Category != usage.CategoryNormal {
		t.Errorf("category = %s", result.Reading.Category)
	}
	if len(store.readings) != 1 {
		t.Fatalf("stored %d readings", len(store.readings))
	}
}

func TestIngestEndpointRejectsInvalidUsage(t *testing.T) {
	router := newTestRouter(t, &memoryReadingStore{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/usage", `{"usage": -3}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/usage", `not json`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestIngestEndpointRequiresIdentity(t *testing.T) {
	router := newTestRouter(t, &memoryReadingStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/usage", strings.NewReader(`{"usage": 10}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	store := &memoryReadingStore{}
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		store.readings = append(store.readings, usage.Reading{
			ID:        usage.NewReadingID(),
			UserID:    "user-1",
			Usage:     20,
			Category:  usage.CategoryNormal,
			Timestamp: now.AddDate(0, 0, -i),
			CreatedAt: now,
		})
	}
	router := newTestRouter(t, store)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/usage?limit=2", ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var list []usage.Reading
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("returned %d readings, want 2", len(list))
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/usage?days=bogus", ""))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	store := &memoryReadingStore{}
	now := time.Now().UTC()
	store.readings = append(store.readings, usage.Reading{
		ID:        usage.NewReadingID(),
		UserID:    "user-1",
		Usage:     30,
		Category:  usage.CategoryNormal,
		Timestamp: now,
		CreatedAt: now,
	})
	router := newTestRouter(t, store)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/usage/stats", ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var stats usageapp.Stats
	if err := json.Unmarshal(resp.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.TotalRecords != 1 || stats.TotalUsage != 30 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSimulateEndpoint(t *testing.T) {
	store := &memoryReadingStore{}
	router := newTestRouter(t, store)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/demo/simulate", `{"days": 3}`))
	if resp.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Created int `json:"created"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Created == 0 || out.Created != len(store.readings) {
		t.Fatalf("created = %d, stored = %d", out.Created, len(store.readings))
	}
}
