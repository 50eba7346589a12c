package usage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Usage categories assigned at ingestion time.
type Category string

const (
	CategoryNormal   Category = "Normal"
	CategoryHigh     Category = "High"
	CategoryCritical Category = "Critical"
)

var (
	// ErrInvalidUsage indicates a non-positive usage value.
	ErrInvalidUsage = errors.New("usage: value must be positive")
	// ErrNotFound indicates a missing reading.
	ErrNotFound = errors.New("usage: reading not found")
)

// Reading is a single water usage record. Immutable once created; the
// category is assigned exactly once at ingestion from the classifier.
type Reading struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Usage     float64   `json:"usage"`
	Category  Category  `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageTotals aggregates a user's usage history.
type UsageTotals struct {
	TotalUsage   float64
	TotalRecords int64
	FirstReading time.Time
}

// ReadingRepository persists usage readings.
type ReadingRepository interface {
	Create(ctx context.Context, reading *Reading) error
	MeanUsage(ctx context.Context, userID string) (*float64, error)
	RecentByUser(ctx context.Context, userID string, limit int) ([]Reading, error)
}

// NewReadingID generates a random reading id.
func NewReadingID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "reading-" + hex.EncodeToString(buf)
}

// Classify maps a usage value against a historical baseline to a
// category. Pure function; the baseline must be clamped by the caller
// (see Detector.ClampBaseline) before use.
func Classify(value, baseline float64) Category {
	switch {
	case value > baseline*2:
		return CategoryCritical
	case value > baseline*1.5:
		return CategoryHigh
	default:
		return CategoryNormal
	}
}
