package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/smtp"

	accounts "waterwatch/internal/accounts/domain"
)

// Mailer delivers one-time codes to users.
type Mailer interface {
	SendOTP(ctx context.Context, email, purpose, code string) error
}

// SMTPMailer sends OTP mails through a plain SMTP relay.
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewSMTPMailer constructs a mailer.
func NewSMTPMailer(host, port, username, password, from string) (*SMTPMailer, error) {
	if host == "" || port == "" {
		return nil, errors.New("mailer: host and port required")
	}
	if from == "" {
		from = username
	}
	if from == "" {
		return nil, errors.New("mailer: from address required")
	}
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}, nil
}

// SendOTP mails the code. net/smtp has no context support; the ctx is
// accepted for interface symmetry and checked before dialing.
func (m *SMTPMailer) SendOTP(ctx context.Context, email, purpose, code string) error {
	if m == nil {
		return errors.New("mailer: nil mailer")
	}
	if email == "" || code == "" {
		return errors.New("mailer: email and code required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := subjectFor(purpose)
	body := fmt.Sprintf(
		"Your verification code is %s.\r\n\r\nThe code expires in 10 minutes. If you did not request it, ignore this mail.\r\n",
		code,
	)
	msg := []byte(
		"From: " + m.from + "\r\n" +
			"To: " + email + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"\r\n" +
			body,
	)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	return smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{email}, msg)
}

func subjectFor(purpose string) string {
	switch purpose {
	case accounts.OTPPurposeReset:
		return "Reset your password"
	default:
		return "Verify your email"
	}
}

// LogMailer writes codes to the log instead of sending mail. Used when
// SMTP is not configured, typically in development.
type LogMailer struct {
	logger *log.Logger
}

// NewLogMailer constructs a log-backed mailer.
func NewLogMailer(logger *log.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendOTP logs the code.
func (m *LogMailer) SendOTP(_ context.Context, email, purpose, code string) error {
	if m == nil || m.logger == nil {
		return errors.New("mailer: nil logger")
	}
	m.logger.Printf("otp for %s (%s): %s", email, purpose, code)
	return nil
}
