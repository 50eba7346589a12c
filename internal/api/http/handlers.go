package apihttp

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

const timeLayout = time.RFC3339

// AdminStatsHandler serves platform-wide statistics for the admin view.
type AdminStatsHandler struct {
	db *sql.DB
}

// NewAdminStatsHandler constructs an AdminStatsHandler.
func NewAdminStatsHandler(db *sql.DB) *AdminStatsHandler {
	return &AdminStatsHandler{db: db}
}

type adminStats struct {
	TotalUsers    int64            `json:"total_users"`
	TotalReadings int64            `json:"total_readings"`
	TotalUsage    float64          `json:"total_usage"`
	ActiveAlerts  int64            `json:"active_alerts"`
	LeakAlerts    int64            `json:"leak_alerts"`
	PendingIssues int64            `json:"pending_issues"`
	ByCategory    map[string]int64 `json:"by_category"`
}

// ServeHTTP handles GET /api/v1/admin/stats.
func (h *AdminStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	stats, err := queryAdminStats(r.Context(), h.db)
	if err != nil {
		http.Error(w, "query stats error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

func queryAdminStats(ctx context.Context, db *sql.DB) (*adminStats, error) {
	stats := &adminStats{ByCategory: make(map[string]int64)}

	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers)
	if err != nil {
		return nil, err
	}
	var total sql.NullFloat64
	err = db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(usage), 0) FROM water_usage`).Scan(&stats.TotalReadings, &total)
	if err != nil {
		return nil, err
	}
	if total.Valid {
		stats.TotalUsage = total.Float64
	}
	err = db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM alerts WHERE status <> 'resolved'`).Scan(&stats.ActiveAlerts)
	if err != nil {
		return nil, err
	}
	err = db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM alerts WHERE alert_type = 'leakage'`).Scan(&stats.LeakAlerts)
	if err != nil {
		return nil, err
	}
	err = db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM issue_reports WHERE status = 'Pending'`).Scan(&stats.PendingIssues)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
SELECT category, COUNT(*) FROM water_usage GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// AdminUsageHandler serves cross-user usage queries.
type AdminUsageHandler struct {
	db *sql.DB
}

// NewAdminUsageHandler constructs an AdminUsageHandler.
func NewAdminUsageHandler(db *sql.DB) *AdminUsageHandler {
	return &AdminUsageHandler{db: db}
}

type usageRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Usage     float64   `json:"usage"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ServeHTTP handles GET /api/v1/admin/usage.
func (h *AdminUsageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	userID := r.URL.Query().Get("user_id")
	limit, err := parseLimitQuery(r, 500)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := queryUsage(r.Context(), h.db, userID, limit)
	if err != nil {
		http.Error(w, "query usage error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []usageRow{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func queryUsage(ctx context.Context, db *sql.DB, userID string, limit int) ([]usageRow, error) {
	query := `
SELECT id, user_id, usage, category, ts, location, created_at
FROM water_usage`
	args := []any{}
	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += " ORDER BY ts DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []usageRow
	for rows.Next() {
		var row usageRow
		var location sql.NullString
		if err := rows.Scan(
			&row.ID,
			&row.UserID,
			&row.Usage,
			&row.Category,
			&row.Timestamp,
			&location,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		row.Timestamp = row.Timestamp.UTC()
		row.CreatedAt = row.CreatedAt.UTC()
		if location.Valid {
			row.Location = location.String
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AdminAlertsHandler serves cross-user alert queries.
type AdminAlertsHandler struct {
	db *sql.DB
}

// NewAdminAlertsHandler constructs an AdminAlertsHandler.
func NewAdminAlertsHandler(db *sql.DB) *AdminAlertsHandler {
	return &AdminAlertsHandler{db: db}
}

type alertRow struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	AlertType  string     `json:"alert_type"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ServeHTTP handles GET /api/v1/admin/alerts.
func (h *AdminAlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	status := r.URL.Query().Get("status")
	limit, err := parseLimitQuery(r, 500)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := queryAlerts(r.Context(), h.db, status, limit)
	if err != nil {
		http.Error(w, "query alerts error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alertRow{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func queryAlerts(ctx context.Context, db *sql.DB, status string, limit int) ([]alertRow, error) {
	query := `
SELECT id, user_id, alert_type, severity, message, status, created_at, resolved_at
FROM alerts`
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alertRow
	for rows.Next() {
		var row alertRow
		var resolvedAt sql.NullTime
		if err := rows.Scan(
			&row.ID,
			&row.UserID,
			&row.AlertType,
			&row.Severity,
			&row.Message,
			&row.Status,
			&row.CreatedAt,
			&resolvedAt,
		); err != nil {
			return nil, err
		}
		row.CreatedAt = row.CreatedAt.UTC()
		if resolvedAt.Valid {
			t := resolvedAt.Time.UTC()
			row.ResolvedAt = &t
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AdminUsersHandler lists registered accounts.
type AdminUsersHandler struct {
	db *sql.DB
}

// NewAdminUsersHandler constructs an AdminUsersHandler.
func NewAdminUsersHandler(db *sql.DB) *AdminUsersHandler {
	return &AdminUsersHandler{db: db}
}

type userRow struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ServeHTTP handles GET /api/v1/admin/users.
func (h *AdminUsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
SELECT id, email, full_name, role, created_at
FROM users
ORDER BY created_at DESC`)
	if err != nil {
		http.Error(w, "query users error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	result := []userRow{}
	for rows.Next() {
		var row userRow
		var fullName sql.NullString
		if err := rows.Scan(&row.ID, &row.Email, &fullName, &row.Role, &row.CreatedAt); err != nil {
			http.Error(w, "query users error", http.StatusInternalServerError)
			return
		}
		row.CreatedAt = row.CreatedAt.UTC()
		if fullName.Valid {
			row.FullName = fullName.String
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		http.Error(w, "query users error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// ExportUsageCSVHandler serves platform-wide usage CSV exports.
type ExportUsageCSVHandler struct {
	db *sql.DB
}

// NewExportUsageCSVHandler constructs an ExportUsageCSVHandler.
func NewExportUsageCSVHandler(db *sql.DB) *ExportUsageCSVHandler {
	return &ExportUsageCSVHandler{db: db}
}

// ServeHTTP handles GET /api/v1/admin/exports/usage.csv.
func (h *ExportUsageCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	userID := r.URL.Query().Get("user_id")
	limit, err := parseLimitQuery(r, 10000)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := queryUsage(r.Context(), h.db, userID, limit)
	if err != nil {
		http.Error(w, "query usage error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"id",
		"user_id",
		"usage",
		"category",
		"timestamp",
		"location",
		"created_at",
	})
	for _, row := range list {
		_ = writer.Write([]string{
			row.ID,
			row.UserID,
			formatFloat(row.Usage),
			row.Category,
			row.Timestamp.Format(timeLayout),
			row.Location,
			row.CreatedAt.Format(timeLayout),
		})
	}
	writer.Flush()
}

func parseLimitQuery(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return parsed, nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
