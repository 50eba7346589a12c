package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"waterwatch/internal/auth"
	usageapp "waterwatch/internal/usage/application"
	usage "waterwatch/internal/usage/domain"
)

const timeLayout = time.RFC3339

// Handler provides usage HTTP endpoints.
type Handler struct {
	service   *usageapp.Service
	simulator *usageapp.Simulator
}

// NewHandler constructs a handler. The simulator is optional.
func NewHandler(service *usageapp.Service, simulator *usageapp.Simulator) (*Handler, error) {
	if service == nil {
		return nil, errors.New("usage handler: nil service")
	}
	return &Handler{service: service, simulator: simulator}, nil
}

// Register mounts usage routes onto the router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/usage", h.handleIngest).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/usage", h.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/usage/stats", h.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/demo/simulate", h.handleSimulate).Methods(http.MethodPost)
}

type ingestRequest struct {
	Usage     float64 `json:"usage"`
	Timestamp string  `json:"timestamp,omitempty"`
	Location  string  `json:"location,omitempty"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	var at time.Time
	if req.Timestamp != "" {
		parsed, err := time.Parse(timeLayout, req.Timestamp)
		if err != nil {
			http.Error(w, "timestamp must be RFC3339", http.StatusBadRequest)
			return
		}
		at = parsed
	}

	result, err := h.service.Ingest(r.Context(), userID, req.Usage, at, req.Location)
	if err != nil {
		if errors.Is(err, usage.ErrInvalidUsage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	days, err := parseIntQuery(r, "days", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := parseIntQuery(r, "limit", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := h.service.History(r.Context(), userID, days, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []usage.Reading{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

type simulateRequest struct {
	Days int `json:"days"`
}

type simulateResponse struct {
	Created int `json:"created"`
}

func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if h.simulator == nil {
		http.Error(w, "simulator disabled", http.StatusNotFound)
		return
	}
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req simulateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
	}

	created, err := h.simulator.Seed(r.Context(), userID, req.Days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(simulateResponse{Created: created})
}

func parseIntQuery(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return parsed, nil
}
