package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	accounts "waterwatch/internal/accounts/domain"
)

// OTPStore keeps pending one-time codes in Redis. Expiry rides on the
// key TTL, so expired codes simply vanish.
type OTPStore struct {
	client *redis.Client
}

// NewOTPStore constructs a store over an existing client.
func NewOTPStore(client *redis.Client) (*OTPStore, error) {
	if client == nil {
		return nil, errors.New("otp store: nil client")
	}
	return &OTPStore{client: client}, nil
}

// NewClient dials Redis and verifies the connection.
func NewClient(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		DB:         0,
		MaxRetries: 3,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

func otpKey(purpose, email string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, email)
}

// Save writes an OTP with a fresh TTL.
func (s *OTPStore) Save(ctx context.Context, otp accounts.OTP, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return errors.New("otp store: nil client")
	}
	if otp.Email == "" || otp.Purpose == "" {
		return errors.New("otp store: missing fields")
	}
	data, err := json.Marshal(otp)
	if err != nil {
		return fmt.Errorf("otp store: marshal: %w", err)
	}
	return s.client.Set(ctx, otpKey(otp.Purpose, otp.Email), data, ttl).Err()
}

// Get fetches a pending OTP, nil when absent or expired.
func (s *OTPStore) Get(ctx context.Context, purpose, email string) (*accounts.OTP, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("otp store: nil client")
	}
	data, err := s.client.Get(ctx, otpKey(purpose, email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var otp accounts.OTP
	if err := json.Unmarshal([]byte(data), &otp); err != nil {
		return nil, fmt.Errorf("otp store: unmarshal: %w", err)
	}
	return &otp, nil
}

// Update rewrites an OTP preserving its remaining TTL.
func (s *OTPStore) Update(ctx context.Context, otp accounts.OTP) error {
	if s == nil || s.client == nil {
		return errors.New("otp store: nil client")
	}
	data, err := json.Marshal(otp)
	if err != nil {
		return fmt.Errorf("otp store: marshal: %w", err)
	}
	return s.client.Set(ctx, otpKey(otp.Purpose, otp.Email), data, redis.KeepTTL).Err()
}

// Delete removes a pending OTP.
func (s *OTPStore) Delete(ctx context.Context, purpose, email string) error {
	if s == nil || s.client == nil {
		return errors.New("otp store: nil client")
	}
	return s.client.Del(ctx, otpKey(purpose, email)).Err()
}
