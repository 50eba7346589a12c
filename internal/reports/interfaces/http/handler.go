package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"waterwatch/internal/auth"
	"waterwatch/internal/observability/metrics"
	reportapp "waterwatch/internal/reports/application"
	"waterwatch/internal/reports/interfaces"
)

// Handler provides report export HTTP endpoints.
type Handler struct {
	service *reportapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *reportapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("reports handler: nil service")
	}
	return &Handler{service: service}, nil
}

// Register mounts report routes onto the router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/reports/generate", h.handleGenerate).Methods(http.MethodGet)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	reportType := r.URL.Query().Get("report_type")
	if reportType == "" {
		reportType = r.URL.Query().Get("type")
	}
	if reportType == "" {
		reportType = reportapp.TypeWeekly
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}

	start := time.Now()
	report, err := h.service.Build(r.Context(), userID, reportType)
	if err != nil {
		if errors.Is(err, reportapp.ErrUnknownType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		metrics.ObserveReportExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var (
		payload     []byte
		contentType string
		extension   string
	)
	switch format {
	case "pdf":
		payload, err = interfaces.BuildUsageReportPDF(report)
		contentType = "application/pdf"
		extension = "pdf"
	case "csv":
		payload, err = interfaces.BuildUsageReportCSV(report)
		contentType = "text/csv"
		extension = "csv"
	case "xlsx":
		payload, err = interfaces.BuildUsageReportXLSX(report)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		extension = "xlsx"
	default:
		http.Error(w, "format must be pdf, csv or xlsx", http.StatusBadRequest)
		return
	}
	if err != nil {
		metrics.ObserveReportExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveReportExport(format, metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=water_usage_%s.%s", reportType, extension))
	_, _ = w.Write(payload)
}
