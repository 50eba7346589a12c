package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "waterwatch/internal/alerts/domain"
)

// AlertRepository is a Postgres repository for alerts.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.ID == "" || alert.UserID == "" || alert.Type == "" {
		return errors.New("alert repo: missing fields")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alerts (
	id, user_id, alert_type, severity, message, status, created_at, resolved_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)`,
		alert.ID,
		alert.UserID,
		alert.Type,
		alert.Severity,
		alert.Message,
		alert.Status,
		alert.CreatedAt,
		nullableTime(alert.ResolvedAt),
	)
	return err
}

// GetByUser fetches an alert by id scoped to its owner.
func (r *AlertRepository) GetByUser(ctx context.Context, userID, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, alert_type, severity, message, status, created_at, resolved_at
FROM alerts
WHERE id = $1 AND user_id = $2`, id, userID)
	return scanAlert(row)
}

// ListByUser lists a user's alerts, newest first, optionally filtered
// by status.
func (r *AlertRepository) ListByUser(ctx context.Context, userID, status string, limit int) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if userID == "" {
		return nil, errors.New("alert repo: user id required")
	}
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT id, user_id, alert_type, severity, message, status, created_at, resolved_at
FROM alerts
WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
		query += " ORDER BY created_at DESC LIMIT $3"
	} else {
		query += " ORDER BY created_at DESC LIMIT $2"
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStatus sets an alert's status and resolved timestamp. A zero
// resolvedAt clears the column (reopening a resolved alert).
func (r *AlertRepository) UpdateStatus(ctx context.Context, id, status string, resolvedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET status = $1, resolved_at = $2
WHERE id = $3`, status, nullableTime(resolvedAt), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alerts.ErrNotFound
	}
	return nil
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.Type,
		&alert.Severity,
		&alert.Message,
		&alert.Status,
		&alert.CreatedAt,
		&resolvedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	if resolvedAt.Valid {
		alert.ResolvedAt = resolvedAt.Time.UTC()
	}
	return &alert, nil
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
