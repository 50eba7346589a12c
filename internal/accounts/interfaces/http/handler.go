package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	accountapp "waterwatch/internal/accounts/application"
	accounts "waterwatch/internal/accounts/domain"
	"waterwatch/internal/auth"
)

// Handler provides authentication HTTP endpoints.
type Handler struct {
	service *accountapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *accountapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("accounts handler: nil service")
	}
	return &Handler{service: service}, nil
}

// Register mounts auth routes onto the router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/auth/send-otp", h.handleSendOTP).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/auth/verify-otp", h.handleVerifyOTP).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/auth/register", h.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/auth/login", h.handleLogin).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/auth/refresh", h.handleRefresh).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/auth/reset-password", h.handleResetPassword).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/auth/me", h.handleMe).Methods(http.MethodGet)
}

// ExemptAuthPaths lists auth endpoints served without a token.
func ExemptAuthPaths() []string {
	return []string{
		"/api/v1/auth/send-otp",
		"/api/v1/auth/verify-otp",
		"/api/v1/auth/register",
		"/api/v1/auth/login",
		"/api/v1/auth/refresh",
		"/api/v1/auth/reset-password",
	}
}

type otpRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	Code    string `json:"code,omitempty"`
}

func (h *Handler) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.service.SendOTP(r.Context(), req.Email, req.Purpose); err != nil {
		switch {
		case errors.Is(err, accounts.ErrEmailTaken):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, accounts.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	respondMessage(w, http.StatusOK, "code sent")
}

func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.service.VerifyOTP(r.Context(), req.Email, req.Purpose, req.Code); err != nil {
		if errors.Is(err, accounts.ErrOTPInvalid) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondMessage(w, http.StatusOK, "code verified")
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	result, err := h.service.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrEmailTaken):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, accounts.ErrOTPNotVerified):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	result, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) || errors.Is(err, accounts.ErrNotFound) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Email, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, accounts.ErrOTPNotVerified):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, accounts.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	respondMessage(w, http.StatusOK, "password updated")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.service.Me(r.Context(), userID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}
