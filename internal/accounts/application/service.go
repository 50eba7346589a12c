package application

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	accounts "waterwatch/internal/accounts/domain"
	"waterwatch/internal/accounts/notify"
	"waterwatch/internal/auth"
	"waterwatch/internal/observability/metrics"
)

const (
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 5
	otpDigits      = 6
)

// OTPStore keeps pending one-time codes.
type OTPStore interface {
	Save(ctx context.Context, otp accounts.OTP, ttl time.Duration) error
	Get(ctx context.Context, purpose, email string) (*accounts.OTP, error)
	Update(ctx context.Context, otp accounts.OTP) error
	Delete(ctx context.Context, purpose, email string) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// AuthResponse is returned after a successful login or registration.
type AuthResponse struct {
	User   accounts.User  `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

// Service handles registration, login and password reset flows.
type Service struct {
	users  accounts.UserRepository
	otps   OTPStore
	mailer notify.Mailer
	secret []byte
	logger *log.Logger
	clock  Clock
}

// ServiceOption customizes the accounts service.
type ServiceOption func(*Service)

// WithClock overrides the clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs an accounts service.
func NewService(users accounts.UserRepository, otps OTPStore, mailer notify.Mailer, secret []byte, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("accounts: nil user repository")
	}
	if otps == nil {
		return nil, errors.New("accounts: nil otp store")
	}
	if mailer == nil {
		return nil, errors.New("accounts: nil mailer")
	}
	if len(secret) == 0 {
		return nil, errors.New("accounts: empty jwt secret")
	}
	if logger == nil {
		return nil, errors.New("accounts: nil logger")
	}
	service := &Service{
		users:  users,
		otps:   otps,
		mailer: mailer,
		secret: secret,
		logger: logger,
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// SendOTP generates a code for an email flow and mails it. Registration
// codes only go to unknown emails; reset codes only to known ones.
func (s *Service) SendOTP(ctx context.Context, email, purpose string) error {
	if s == nil {
		return errors.New("accounts: nil service")
	}
	email = normalizeEmail(email)
	if email == "" {
		return errors.New("accounts: email required")
	}
	if !accounts.ValidOTPPurpose(purpose) {
		return errors.New("accounts: unknown otp purpose")
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("accounts: lookup user: %w", err)
	}
	switch purpose {
	case accounts.OTPPurposeRegister:
		if existing != nil {
			return accounts.ErrEmailTaken
		}
	case accounts.OTPPurposeReset:
		if existing == nil {
			return accounts.ErrNotFound
		}
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("accounts: generate code: %w", err)
	}
	otp := accounts.OTP{Email: email, Purpose: purpose, Code: code}
	if err := s.otps.Save(ctx, otp, otpTTL); err != nil {
		return fmt.Errorf("accounts: store otp: %w", err)
	}
	if err := s.mailer.SendOTP(ctx, email, purpose, code); err != nil {
		metrics.IncOTPEmail(purpose, metrics.ResultError)
		return fmt.Errorf("accounts: send otp: %w", err)
	}
	metrics.IncOTPEmail(purpose, metrics.ResultSuccess)
	return nil
}

// VerifyOTP checks a submitted code. A verified code stays in the store
// until the flow that requested it completes.
func (s *Service) VerifyOTP(ctx context.Context, email, purpose, code string) error {
	if s == nil {
		return errors.New("accounts: nil service")
	}
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return accounts.ErrOTPInvalid
	}
	otp, err := s.otps.Get(ctx, purpose, email)
	if err != nil {
		return fmt.Errorf("accounts: load otp: %w", err)
	}
	if otp == nil {
		return accounts.ErrOTPInvalid
	}
	if otp.Attempts >= otpMaxAttempts {
		_ = s.otps.Delete(ctx, purpose, email)
		return accounts.ErrOTPInvalid
	}
	if otp.Code != code {
		otp.Attempts++
		if err := s.otps.Update(ctx, *otp); err != nil {
			s.logger.Printf("otp attempt update failed: %v", err)
		}
		return accounts.ErrOTPInvalid
	}
	otp.Verified = true
	if err := s.otps.Update(ctx, *otp); err != nil {
		return fmt.Errorf("accounts: mark otp verified: %w", err)
	}
	return nil
}

// Register creates an account for a verified email and signs the user in.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*AuthResponse, error) {
	if s == nil {
		return nil, errors.New("accounts: nil service")
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("accounts: email required")
	}
	if len(password) < 8 {
		return nil, errors.New("accounts: password must be at least 8 characters")
	}

	otp, err := s.otps.Get(ctx, accounts.OTPPurposeRegister, email)
	if err != nil {
		return nil, fmt.Errorf("accounts: load otp: %w", err)
	}
	if otp == nil || !otp.Verified {
		return nil, accounts.ErrOTPNotVerified
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("accounts: lookup user: %w", err)
	}
	if existing != nil {
		return nil, accounts.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("accounts: hash password: %w", err)
	}
	user := &accounts.User{
		ID:           accounts.NewUserID(),
		Email:        email,
		FullName:     fullName,
		Role:         string(auth.RoleUser),
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("accounts: create user: %w", err)
	}
	_ = s.otps.Delete(ctx, accounts.OTPPurposeRegister, email)

	return s.respondWithTokens(user)
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	if s == nil {
		return nil, errors.New("accounts: nil service")
	}
	email = normalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("accounts: lookup user: %w", err)
	}
	if user == nil {
		metrics.IncLogin(metrics.ResultError)
		return nil, accounts.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.IncLogin(metrics.ResultError)
		return nil, accounts.ErrInvalidCredentials
	}
	metrics.IncLogin(metrics.ResultSuccess)
	return s.respondWithTokens(user)
}

// ResetPassword replaces the password for a verified reset flow.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword string) error {
	if s == nil {
		return errors.New("accounts: nil service")
	}
	email = normalizeEmail(email)
	if len(newPassword) < 8 {
		return errors.New("accounts: password must be at least 8 characters")
	}

	otp, err := s.otps.Get(ctx, accounts.OTPPurposeReset, email)
	if err != nil {
		return fmt.Errorf("accounts: load otp: %w", err)
	}
	if otp == nil || !otp.Verified {
		return accounts.ErrOTPNotVerified
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("accounts: lookup user: %w", err)
	}
	if user == nil {
		return accounts.ErrNotFound
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("accounts: hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return fmt.Errorf("accounts: update password: %w", err)
	}
	_ = s.otps.Delete(ctx, accounts.OTPPurposeReset, email)
	return nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if s == nil {
		return nil, errors.New("accounts: nil service")
	}
	claims, err := auth.ParseJWT(refreshToken, s.secret)
	if err != nil {
		return nil, accounts.ErrInvalidCredentials
	}
	if claims.TokenType != auth.TokenTypeRefresh {
		return nil, accounts.ErrInvalidCredentials
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("accounts: lookup user: %w", err)
	}
	if user == nil {
		return nil, accounts.ErrNotFound
	}
	return s.respondWithTokens(user)
}

// Me fetches the account behind an authenticated request.
func (s *Service) Me(ctx context.Context, userID string) (*accounts.User, error) {
	if s == nil {
		return nil, errors.New("accounts: nil service")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("accounts: lookup user: %w", err)
	}
	if user == nil {
		return nil, accounts.ErrNotFound
	}
	return user, nil
}

func (s *Service) respondWithTokens(user *accounts.User) (*AuthResponse, error) {
	role, ok := auth.NormalizeRole(user.Role)
	if !ok {
		role = auth.RoleUser
	}
	tokens, err := auth.IssueTokens(s.secret, user.ID, user.Email, role, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("accounts: issue tokens: %w", err)
	}
	return &AuthResponse{User: *user, Tokens: tokens}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateCode() (string, error) {
	bound := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		bound.Mul(bound, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
