package issues

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Urgency levels a reporter can pick.
const (
	UrgencyLow    = "Low"
	UrgencyMedium = "Medium"
	UrgencyHigh   = "High"
)

// Report statuses.
const (
	StatusPending  = "Pending"
	StatusResolved = "Resolved"
)

var (
	// ErrNotFound indicates a missing report.
	ErrNotFound = errors.New("issues: report not found")
	// ErrInvalidUrgency indicates an unknown urgency level.
	ErrInvalidUrgency = errors.New("issues: invalid urgency")
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("issues: invalid status")
)

// Report is a user-filed issue, for example a suspected meter fault.
type Report struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Urgency     string    `json:"urgency"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"`
}

// ValidUrgency reports whether urgency names a known level.
func ValidUrgency(urgency string) bool {
	switch urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	default:
		return false
	}
}

// ValidStatus reports whether status names a known state.
func ValidStatus(status string) bool {
	return status == StatusPending || status == StatusResolved
}

// ReportRepository persists issue reports.
type ReportRepository interface {
	Create(ctx context.Context, report *Report) error
	Get(ctx context.Context, id string) (*Report, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Report, error)
	List(ctx context.Context, status string, limit int) ([]Report, error)
	UpdateStatus(ctx context.Context, id, status string, resolvedAt time.Time) error
}

// NewReportID generates a random report id.
func NewReportID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "issue-" + hex.EncodeToString(buf)
}
