package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gopkg.in/gomail.v2"
)

// Notifier delivers a verification code to a destination address.
// It decides nothing about when or what to send.
type Notifier interface {
	Send(ctx context.Context, destination, code string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, destination, code string) error

func (f NotifierFunc) Send(ctx context.Context, destination, code string) error {
	return f(ctx, destination, code)
}

type emailNotifier struct {
	dialer *gomail.Dialer
	from   string
	ttl    time.Duration
}

func NewEmailNotifier(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string, codeTTL time.Duration) Notifier {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailNotifier{
		dialer: dialer,
		from:   fromEmail,
		ttl:    codeTTL,
	}
}

func (s *emailNotifier) Send(ctx context.Context, destination, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", destination)
	m.SetHeader("Subject", verificationSubject)
	m.SetBody("text/plain", verificationText(code, s.ttl))
	m.AddAlternative("text/html", verificationHTML(code, s.ttl))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

type logNotifier struct{}

// NewLogNotifier only logs the code. Used for local runs (notifier.driver: log).
func NewLogNotifier() Notifier {
	return logNotifier{}
}

func (logNotifier) Send(_ context.Context, destination, code string) error {
	log.Printf("[notify][dry-run] to=%s code=%s", destination, code)
	return nil
}

const verificationSubject = "Your verification code"

func verificationText(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(ttl.Minutes()))
}

func verificationHTML(code string, ttl time.Duration) string {
	return fmt.Sprintf(`
		<h3>Confirm your email address</h3>
		<p>Your verification code is: <strong>%s</strong></p>
		<p>The code expires in %d minutes. If you did not request it, you can ignore this email.</p>
	`, code, int(ttl.Minutes()))
}
