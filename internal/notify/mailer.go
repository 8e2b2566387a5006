// Package notify sends the bakery's transactional emails through the first
// configured provider. A failed send is reported to the caller, which logs
// it; it never undoes the change that triggered the email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var ErrNotConfigured = errors.New("no email provider configured")

type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

func (m Message) validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	if m.Subject == "" {
		return errors.New("email subject is empty")
	}
	return nil
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
	// Provider names the backing service, e.g. "sendgrid".
	Provider() string
}

// LogMailer is used when no provider is configured. It records what would
// have been sent and reports ErrNotConfigured.
type LogMailer struct {
	logger *logrus.Logger
}

func NewLogMailer(logger *logrus.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Warn("Email not sent: no provider configured")
	return ErrNotConfigured
}

func (m *LogMailer) Provider() string { return "log" }

// Throttled caps the rate of outgoing emails shared by all callers. Send
// waits for a slot or for ctx to end.
type Throttled struct {
	next    Mailer
	limiter *rate.Limiter
}

func NewThrottled(next Mailer, perSecond float64) *Throttled {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) Send(ctx context.Context, msg Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email throttle: %w", err)
	}
	return t.next.Send(ctx, msg)
}

func (t *Throttled) Provider() string { return t.next.Provider() }
