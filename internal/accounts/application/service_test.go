package application

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	accounts "waterwatch/internal/accounts/domain"
	"waterwatch/internal/auth"
)

type memoryUserRepo struct {
	byEmail map[string]*accounts.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{byEmail: make(map[string]*accounts.User)}
}

func (r *memoryUserRepo) Create(_ context.Context, user *accounts.User) error {
	if _, ok := r.byEmail[user.Email]; ok {
		return accounts.ErrEmailTaken
	}
	copied := *user
	r.byEmail[user.Email] = &copied
	return nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (*accounts.User, error) {
	user, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (r *memoryUserRepo) GetByID(_ context.Context, id string) (*accounts.User, error) {
	for _, user := range r.byEmail {
		if user.ID == id {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	for _, user := range r.byEmail {
		if user.ID == id {
			user.PasswordHash = passwordHash
			return nil
		}
	}
	return accounts.ErrNotFound
}

type memoryOTPStore struct {
	byKey map[string]accounts.OTP
}

func newMemoryOTPStore() *memoryOTPStore {
	return &memoryOTPStore{byKey: make(map[string]accounts.OTP)}
}

func (s *memoryOTPStore) key(purpose, email string) string { return purpose + ":" + email }

func (s *memoryOTPStore) Save(_ context.Context, otp accounts.OTP, _ time.Duration) error {
	s.byKey[s.key(otp.Purpose, otp.Email)] = otp
	return nil
}

func (s *memoryOTPStore) Get(_ context.Context, purpose, email string) (*accounts.OTP, error) {
	otp, ok := s.byKey[s.key(purpose, email)]
	if !ok {
		return nil, nil
	}
	return &otp, nil
}

func (s *memoryOTPStore) Update(_ context.Context, otp accounts.OTP) error {
	s.byKey[s.key(otp.Purpose, otp.Email)] = otp
	return nil
}

func (s *memoryOTPStore) Delete(_ context.Context, purpose, email string) error {
	delete(s.byKey, s.key(purpose, email))
	return nil
}

type capturingMailer struct {
	codes map[string]string
	err   error
}

func newCapturingMailer() *capturingMailer {
	return &capturingMailer{codes: make(map[string]string)}
}

func (m *capturingMailer) SendOTP(_ context.Context, email, purpose, code string) error {
	if m.err != nil {
		return m.err
	}
	m.codes[purpose+":"+email] = code
	return nil
}

type fixture struct {
	users  *memoryUserRepo
	otps   *memoryOTPStore
	mailer *capturingMailer
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := newMemoryUserRepo()
	otps := newMemoryOTPStore()
	mailer := newCapturingMailer()
	svc, err := NewService(users, otps, mailer, []byte("test-secret"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{users: users, otps: otps, mailer: mailer, svc: svc}
}

func (f *fixture) registerUser(t *testing.T, email, password string) *AuthResponse {
	t.Helper()
	ctx := context.Background()
	if err := f.svc.SendOTP(ctx, email, accounts.OTPPurposeRegister); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := f.mailer.codes[accounts.OTPPurposeRegister+":"+email]
	if err := f.svc.VerifyOTP(ctx, email, accounts.OTPPurposeRegister, code); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	resp, err := f.svc.Register(ctx, email, password, "Test User")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return resp
}

func TestRegisterFlow(t *testing.T) {
	f := newFixture(t)
	resp := f.registerUser(t, "new@example.com", "password123")

	if resp.User.Email != "new@example.com" || resp.User.Role != string(auth.RoleUser) {
		t.Fatalf("user = %+v", resp.User)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatal("missing tokens")
	}
	claims, err := auth.ParseJWT(resp.Tokens.AccessToken, []byte("test-secret"))
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.Subject != resp.User.ID || claims.Email != "new@example.com" {
		t.Fatalf("claims = %+v", claims)
	}
	// The register code is consumed.
	if otp, _ := f.otps.Get(context.Background(), accounts.OTPPurposeRegister, "new@example.com"); otp != nil {
		t.Fatal("otp not deleted after registration")
	}
}

func TestRegisterRequiresVerifiedOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, "new@example.com", "password123", ""); !errors.Is(err, accounts.ErrOTPNotVerified) {
		t.Fatalf("err = %v, want ErrOTPNotVerified", err)
	}

	// A sent but unverified code is not enough.
	if err := f.svc.SendOTP(ctx, "new@example.com", accounts.OTPPurposeRegister); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if _, err := f.svc.Register(ctx, "new@example.com", "password123", ""); !errors.Is(err, accounts.ErrOTPNotVerified) {
		t.Fatalf("err = %v, want ErrOTPNotVerified", err)
	}
}

func TestSendOTPRegisterRejectsKnownEmail(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "known@example.com", "password123")

	err := f.svc.SendOTP(context.Background(), "known@example.com", accounts.OTPPurposeRegister)
	if !errors.Is(err, accounts.ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestSendOTPResetRequiresKnownEmail(t *testing.T) {
	f := newFixture(t)
	err := f.svc.SendOTP(context.Background(), "ghost@example.com", accounts.OTPPurposeReset)
	if !errors.Is(err, accounts.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestVerifyOTPWrongCodeCountsAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.SendOTP(ctx, "new@example.com", accounts.OTPPurposeRegister); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}

	for i := 0; i < otpMaxAttempts; i++ {
		if err := f.svc.VerifyOTP(ctx, "new@example.com", accounts.OTPPurposeRegister, "000000x"); !errors.Is(err, accounts.ErrOTPInvalid) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	// Attempts exhausted; even the right code is rejected and the otp
	// is discarded.
	code := f.mailer.codes[accounts.OTPPurposeRegister+":new@example.com"]
	if err := f.svc.VerifyOTP(ctx, "new@example.com", accounts.OTPPurposeRegister, code); !errors.Is(err, accounts.ErrOTPInvalid) {
		t.Fatalf("err = %v, want ErrOTPInvalid", err)
	}
	if otp, _ := f.otps.Get(ctx, accounts.OTPPurposeRegister, "new@example.com"); otp != nil {
		t.Fatal("otp not deleted after exhausted attempts")
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "user@example.com", "password123")
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "User@Example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.User.Email != "user@example.com" {
		t.Fatalf("user = %+v", resp.User)
	}

	if _, err := f.svc.Login(ctx, "user@example.com", "wrong-password"); !errors.Is(err, accounts.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.svc.Login(ctx, "ghost@example.com", "password123"); !errors.Is(err, accounts.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "user@example.com", "password123")
	ctx := context.Background()

	if err := f.svc.SendOTP(ctx, "user@example.com", accounts.OTPPurposeReset); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := f.mailer.codes[accounts.OTPPurposeReset+":user@example.com"]
	if err := f.svc.VerifyOTP(ctx, "user@example.com", accounts.OTPPurposeReset, code); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, "user@example.com", "newpassword456"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if _, err := f.svc.Login(ctx, "user@example.com", "password123"); !errors.Is(err, accounts.ErrInvalidCredentials) {
		t.Fatalf("old password still valid: %v", err)
	}
	if _, err := f.svc.Login(ctx, "user@example.com", "newpassword456"); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	resp := f.registerUser(t, "user@example.com", "password123")
	ctx := context.Background()

	refreshed, err := f.svc.Refresh(ctx, resp.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.Tokens.AccessToken == "" {
		t.Fatal("missing access token")
	}

	// Access tokens cannot be used as refresh tokens.
	if _, err := f.svc.Refresh(ctx, resp.Tokens.AccessToken); !errors.Is(err, accounts.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}
