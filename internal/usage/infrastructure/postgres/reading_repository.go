package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	usage "waterwatch/internal/usage/domain"
)

// ReadingRepository is a Postgres repository for usage readings.
type ReadingRepository struct {
	db *sql.DB
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Create inserts a new reading.
func (r *ReadingRepository) Create(ctx context.Context, reading *usage.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if reading == nil {
		return errors.New("reading repo: nil reading")
	}
	if reading.ID == "" || reading.UserID == "" {
		return errors.New("reading repo: missing fields")
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO water_usage (
	id, user_id, usage, category, ts, location, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`,
		reading.ID,
		reading.UserID,
		reading.Usage,
		string(reading.Category),
		reading.Timestamp,
		nullableString(reading.Location),
		reading.CreatedAt,
	)
	return err
}

// MeanUsage returns the arithmetic mean of all of a user's readings, or
// nil when the user has no history.
func (r *ReadingRepository) MeanUsage(ctx context.Context, userID string) (*float64, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if userID == "" {
		return nil, errors.New("reading repo: user id required")
	}
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
SELECT AVG(usage) FROM water_usage WHERE user_id = $1`, userID).Scan(&avg)
	if err != nil {
		return nil, err
	}
	if !avg.Valid {
		return nil, nil
	}
	value := avg.Float64
	return &value, nil
}

// RecentByUser returns the most recent readings for a user, newest first.
func (r *ReadingRepository) RecentByUser(ctx context.Context, userID string, limit int) ([]usage.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if userID == "" {
		return nil, errors.New("reading repo: user id required")
	}
	if limit <= 0 {
		limit = 24
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, usage, category, ts, location, created_at
FROM water_usage
WHERE user_id = $1
ORDER BY ts DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReadings(rows)
}

// ListByUser returns readings for a user, newest first, optionally
// restricted to readings at or after since.
func (r *ReadingRepository) ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]usage.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if userID == "" {
		return nil, errors.New("reading repo: user id required")
	}
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT id, user_id, usage, category, ts, location, created_at
FROM water_usage
WHERE user_id = $1`
	args := []any{userID}
	if !since.IsZero() {
		query += " AND ts >= $2"
		args = append(args, since)
	}
	query += " ORDER BY ts DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReadings(rows)
}

// Totals returns total usage, record count and the earliest timestamp.
func (r *ReadingRepository) Totals(ctx context.Context, userID string) (*usage.UsageTotals, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	var totals usage.UsageTotals
	var total sql.NullFloat64
	var first sql.NullTime
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(usage), 0), COUNT(*), MIN(ts)
FROM water_usage
WHERE user_id = $1`, userID).Scan(&total, &totals.TotalRecords, &first)
	if err != nil {
		return nil, err
	}
	if total.Valid {
		totals.TotalUsage = total.Float64
	}
	if first.Valid {
		totals.FirstReading = first.Time.UTC()
	}
	return &totals, nil
}

// MonthUsage sums a user's usage for a calendar month.
func (r *ReadingRepository) MonthUsage(ctx context.Context, userID string, year int, month time.Month) (float64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("reading repo: nil db")
	}
	var total sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(usage), 0)
FROM water_usage
WHERE user_id = $1
	AND EXTRACT(YEAR FROM ts) = $2
	AND EXTRACT(MONTH FROM ts) = $3`, userID, year, int(month)).Scan(&total)
	if err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}

type readingScanner interface {
	Scan(dest ...any) error
}

func collectReadings(rows *sql.Rows) ([]usage.Reading, error) {
	var result []usage.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanReading(row readingScanner) (*usage.Reading, error) {
	var reading usage.Reading
	var category string
	var location sql.NullString
	if err := row.Scan(
		&reading.ID,
		&reading.UserID,
		&reading.Usage,
		&category,
		&reading.Timestamp,
		&location,
		&reading.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	reading.Category = usage.Category(category)
	reading.Timestamp = reading.Timestamp.UTC()
	reading.CreatedAt = reading.CreatedAt.UTC()
	if location.Valid {
		reading.Location = location.String
	}
	return &reading, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
