// Package notify sends the verification link to a lead by email or SMS. Each channel
// is idempotent per lead for the notification dedup window.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/acme/lead-engagement/internal/dedup"
	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/pkg/logger"
)

// EmailSender delivers the verification email.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, toEmail, verifyURL string) error
}

// SMSSender delivers a text message.
type SMSSender interface {
	SendSMS(ctx context.Context, toPhone, body string) error
}

// Notifier sends verification links, at most once per lead and channel per window.
type Notifier struct {
	email     EmailSender
	sms       SMSSender
	sent      dedup.Cache
	verifyURL string
	logger    *logger.Logger
}

// New constructs a Notifier.
func New(email EmailSender, sms SMSSender, sent dedup.Cache, verifyURL string, log *logger.Logger) *Notifier {
	return &Notifier{email: email, sms: sms, sent: sent, verifyURL: verifyURL, logger: log}
}

// SendVerificationEmail emails the verification link unless one went out within the window.
// It reports whether a message was sent.
func (n *Notifier) SendVerificationEmail(ctx context.Context, lead domain.Lead) (bool, error) {
	if !lead.HasEmail() {
		return false, nil
	}
	return n.once(ctx, "email", lead, func() error {
		return n.email.SendVerificationEmail(ctx, lead.Email, n.link(lead))
	})
}

// SendVerificationSMS texts the verification link unless one went out within the window.
func (n *Notifier) SendVerificationSMS(ctx context.Context, lead domain.Lead) (bool, error) {
	if !lead.HasPhone() {
		return false, nil
	}
	body := fmt.Sprintf("Thanks for your time on the phone. Complete your details here: %s", n.link(lead))
	return n.once(ctx, "sms", lead, func() error {
		return n.sms.SendSMS(ctx, lead.Phone, body)
	})
}

func (n *Notifier) once(ctx context.Context, channel string, lead domain.Lead, send func() error) (bool, error) {
	key := dedup.Key("notify:"+channel, lead.ID.String())
	first, err := n.sent.MarkIfAbsent(ctx, key)
	if err != nil {
		return false, fmt.Errorf("notify: dedup %s: %w", channel, err)
	}
	if !first {
		n.logger.Debug("verification already sent within window",
			zap.String("lead_id", lead.ID.String()), zap.String("channel", channel))
		return false, nil
	}

	if err := send(); err != nil {
		// release the key so the next outcome can try again
		if ferr := n.sent.Forget(ctx, key); ferr != nil {
			n.logger.Warn("failed to release notification key", zap.Error(ferr))
		}
		return false, fmt.Errorf("notify: send %s: %w", channel, err)
	}
	return true, nil
}

func (n *Notifier) link(lead domain.Lead) string {
	return fmt.Sprintf("%s?lead=%s", n.verifyURL, lead.ID)
}
