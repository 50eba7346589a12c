package alerts

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

const (
	TypeLeakage        = "leakage"
	TypeHighUsage      = "high_usage"
	TypeMonthlySummary = "monthly_summary"
)

const (
	StatusNew      = "new"
	StatusRead     = "read"
	StatusResolved = "resolved"
)

var (
	// ErrNotFound indicates a missing or foreign alert.
	ErrNotFound = errors.New("alerts: alert not found")
	// ErrInvalidStatus indicates an unknown target status.
	ErrInvalidStatus = errors.New("alerts: invalid status")
)

// Alert is a persisted notification raised from a usage diagnosis.
// Created once per finding; mutated only via status transitions.
type Alert struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Type       string    `json:"alert_type"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

// ValidStatus reports whether value is a known alert status.
func ValidStatus(value string) bool {
	switch value {
	case StatusNew, StatusRead, StatusResolved:
		return true
	default:
		return false
	}
}

// BuildAlerts creates one alert per finding. Every alert in the batch
// carries the diagnosis aggregate severity, not a per-finding one.
// There is no deduplication against earlier batches.
func BuildAlerts(userID string, findings []string, severity string, now time.Time) []Alert {
	result := make([]Alert, 0, len(findings))
	for _, finding := range findings {
		result = append(result, Alert{
			ID:        NewAlertID(),
			UserID:    userID,
			Type:      TypeForFinding(finding),
			Severity:  severity,
			Message:   finding,
			Status:    StatusNew,
			CreatedAt: now.UTC(),
		})
	}
	return result
}

// TypeForFinding maps a finding message to an alert type. Any mention
// of a leak, case-insensitive, makes it a leakage alert.
func TypeForFinding(message string) string {
	if strings.Contains(strings.ToLower(message), "leak") {
		return TypeLeakage
	}
	return TypeHighUsage
}

// NewAlertID generates a random alert id.
func NewAlertID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "alert-" + hex.EncodeToString(buf)
}
