package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/resend/resend-go/v2"
)

type resendNotifier struct {
	client *resend.Client
	from   string
	ttl    time.Duration
}

// NewResendNotifier sends codes through the Resend HTTP API.
func NewResendNotifier(apiKey, fromEmail string, codeTTL time.Duration) (Notifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}
	if fromEmail == "" {
		return nil, fmt.Errorf("from email is required")
	}
	return &resendNotifier{
		client: resend.NewClient(apiKey),
		from:   fromEmail,
		ttl:    codeTTL,
	}, nil
}

func (n *resendNotifier) Send(ctx context.Context, destination, code string) error {
	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{destination},
		Subject: verificationSubject,
		Html:    verificationHTML(code, n.ttl),
		Text:    verificationText(code, n.ttl),
	}
	sent, err := n.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	log.Printf("[notify][resend] sent id=%s", sent.Id)
	return nil
}
