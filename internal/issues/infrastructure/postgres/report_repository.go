package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	issues "waterwatch/internal/issues/domain"
)

// ReportRepository is a Postgres repository for issue reports.
type ReportRepository struct {
	db *sql.DB
}

// NewReportRepository constructs a repository.
func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new report.
func (r *ReportRepository) Create(ctx context.Context, report *issues.Report) error {
	if r == nil || r.db == nil {
		return errors.New("report repo: nil db")
	}
	if report == nil {
		return errors.New("report repo: nil report")
	}
	if report.ID == "" || report.UserID == "" {
		return errors.New("report repo: missing fields")
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO issue_reports (
	id, user_id, description, urgency, status, created_at, resolved_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`,
		report.ID,
		report.UserID,
		report.Description,
		report.Urgency,
		report.Status,
		report.CreatedAt,
		nullableTime(report.ResolvedAt),
	)
	return err
}

// Get fetches a report by id, nil when absent.
func (r *ReportRepository) Get(ctx context.Context, id string) (*issues.Report, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("report repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, description, urgency, status, created_at, resolved_at
FROM issue_reports
WHERE id = $1`, id)
	return scanReport(row)
}

// ListByUser returns a user's reports, newest first.
func (r *ReportRepository) ListByUser(ctx context.Context, userID string, limit int) ([]issues.Report, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("report repo: nil db")
	}
	if userID == "" {
		return nil, errors.New("report repo: user id required")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, description, urgency, status, created_at, resolved_at
FROM issue_reports
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReports(rows)
}

// List returns reports across users, optionally filtered by status.
func (r *ReportRepository) List(ctx context.Context, status string, limit int) ([]issues.Report, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("report repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = r.db.QueryContext(ctx, `
SELECT id, user_id, description, urgency, status, created_at, resolved_at
FROM issue_reports
WHERE status = $1
ORDER BY created_at DESC
LIMIT $2`, status, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT id, user_id, description, urgency, status, created_at, resolved_at
FROM issue_reports
ORDER BY created_at DESC
LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReports(rows)
}

// UpdateStatus transitions a report. A zero resolvedAt clears the column.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id, status string, resolvedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("report repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE issue_reports
SET status = $2, resolved_at = $3
WHERE id = $1`, id, status, nullableTime(resolvedAt))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return issues.ErrNotFound
	}
	return nil
}

type reportScanner interface {
	Scan(dest ...any) error
}

func collectReports(rows *sql.Rows) ([]issues.Report, error) {
	var result []issues.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanReport(row reportScanner) (*issues.Report, error) {
	var report issues.Report
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&report.ID,
		&report.UserID,
		&report.Description,
		&report.Urgency,
		&report.Status,
		&report.CreatedAt,
		&resolvedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	report.CreatedAt = report.CreatedAt.UTC()
	if resolvedAt.Valid {
		report.ResolvedAt = resolvedAt.Time.UTC()
	}
	return &report, nil
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
