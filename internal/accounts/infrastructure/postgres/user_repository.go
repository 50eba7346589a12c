package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	accounts "waterwatch/internal/accounts/domain"
)

// UserRepository is a Postgres repository for accounts.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository constructs a repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *accounts.User) error {
	if r == nil || r.db == nil {
		return errors.New("user repo: nil db")
	}
	if user == nil {
		return errors.New("user repo: nil user")
	}
	if user.ID == "" || user.Email == "" {
		return errors.New("user repo: missing fields")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (
	id, email, full_name, role, password_hash, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6
)`,
		user.ID,
		strings.ToLower(user.Email),
		nullableString(user.FullName),
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return accounts.ErrEmailTaken
	}
	return err
}

// GetByEmail fetches a user by email, nil when absent.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*accounts.User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("user repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, email, full_name, role, password_hash, created_at
FROM users
WHERE email = $1`, strings.ToLower(email))
	return scanUser(row)
}

// GetByID fetches a user by id, nil when absent.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*accounts.User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("user repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, email, full_name, role, password_hash, created_at
FROM users
WHERE id = $1`, id)
	return scanUser(row)
}

// UpdatePassword replaces a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if r == nil || r.db == nil {
		return errors.New("user repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

type userScanner interface {
	Scan(dest ...any) error
}

func scanUser(row userScanner) (*accounts.User, error) {
	var user accounts.User
	var fullName sql.NullString
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&fullName,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if fullName.Valid {
		user.FullName = fullName.String
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
