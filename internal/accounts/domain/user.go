package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// OTP purposes.
const (
	OTPPurposeRegister = "register"
	OTPPurposeReset    = "reset"
)

var (
	// ErrNotFound indicates a missing account.
	ErrNotFound = errors.New("accounts: user not found")
	// ErrEmailTaken indicates a registration against an existing email.
	ErrEmailTaken = errors.New("accounts: email already registered")
	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = errors.New("accounts: invalid credentials")
	// ErrOTPInvalid indicates a missing, expired or mismatched code.
	ErrOTPInvalid = errors.New("accounts: invalid or expired code")
	// ErrOTPNotVerified indicates the flow skipped code verification.
	ErrOTPNotVerified = errors.New("accounts: email not verified")
)

// User is a registered account. The password hash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name,omitempty"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// OTP is a one-time code pending verification for an email flow.
type OTP struct {
	Email    string `json:"email"`
	Purpose  string `json:"purpose"`
	Code     string `json:"code"`
	Attempts int    `json:"attempts"`
	Verified bool   `json:"verified"`
}

// ValidOTPPurpose reports whether purpose names a known flow.
func ValidOTPPurpose(purpose string) bool {
	return purpose == OTPPurposeRegister || purpose == OTPPurposeReset
}

// UserRepository persists accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// NewUserID generates a random user id.
func NewUserID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "user-" + hex.EncodeToString(buf)
}
