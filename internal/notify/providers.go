package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/jogardn/bakery-orders/internal/circuitbreaker"
)

const (
	SendGridURL = "https://api.sendgrid.com/v3/mail/send"
	ResendURL   = "https://api.resend.com/emails"
)

type Sender struct {
	Email string
	Name  string
}

func (s Sender) String() string {
	if s.Name == "" {
		return s.Email
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// httpMailer covers the JSON-over-HTTPS providers.
type httpMailer struct {
	name     string
	endpoint string
	apiKey   string
	from     Sender
	client   *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	payload  func(from Sender, msg Message) interface{}
}

func (m *httpMailer) Provider() string { return m.name }

func (m *httpMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(m.payload(m.from, msg))
	if err != nil {
		return err
	}

	return m.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			return fmt.Errorf("call %s: %w", m.name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("%s returned status %d: %s", m.name, resp.StatusCode, bytes.TrimSpace(detail))
		}
		return nil
	})
}

func NewSendGrid(endpoint, apiKey string, from Sender, breaker *circuitbreaker.CircuitBreaker) Mailer {
	return &httpMailer{
		name:     "sendgrid",
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 15 * time.Second},
		breaker:  breaker,
		payload:  sendGridPayload,
	}
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func sendGridPayload(from Sender, msg Message) interface{} {
	return struct {
		Personalizations []struct {
			To []sgAddress `json:"to"`
		} `json:"personalizations"`
		From    sgAddress   `json:"from"`
		Subject string      `json:"subject"`
		Content []sgContent `json:"content"`
	}{
		Personalizations: []struct {
			To []sgAddress `json:"to"`
		}{{To: []sgAddress{{Email: msg.To, Name: msg.ToName}}}},
		From:    sgAddress{Email: from.Email, Name: from.Name},
		Subject: msg.Subject,
		// SendGrid requires text/plain before text/html.
		Content: []sgContent{{"text/plain", msg.Text}, {"text/html", msg.HTML}},
	}
}

func NewResend(endpoint, apiKey string, from Sender, breaker *circuitbreaker.CircuitBreaker) Mailer {
	return &httpMailer{
		name:     "resend",
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 15 * time.Second},
		breaker:  breaker,
		payload:  resendPayload,
	}
}

func resendPayload(from Sender, msg Message) interface{} {
	return struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
		Text    string   `json:"text"`
	}{from.String(), []string{msg.To}, msg.Subject, msg.HTML, msg.Text}
}

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
}

type smtpMailer struct {
	settings SMTPSettings
	from     Sender
	breaker  *circuitbreaker.CircuitBreaker
}

func NewSMTP(settings SMTPSettings, from Sender, breaker *circuitbreaker.CircuitBreaker) Mailer {
	return &smtpMailer{settings: settings, from: from, breaker: breaker}
}

func (m *smtpMailer) Provider() string { return "smtp" }

func (m *smtpMailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.settings.Port),
		mail.WithTimeout(15 * time.Second),
	}
	if m.settings.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if m.settings.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.settings.Username),
			mail.WithPassword(m.settings.Password),
		)
	}
	return mail.NewClient(m.settings.Host, opts...)
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	email := mail.NewMsg()
	if err := email.FromFormat(m.from.Name, m.from.Email); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := email.AddToFormat(msg.ToName, msg.To); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	email.Subject(msg.Subject)
	email.SetBodyString(mail.TypeTextPlain, msg.Text)
	email.AddAlternativeString(mail.TypeTextHTML, msg.HTML)

	client, err := m.client()
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	return m.breaker.Execute(ctx, func(ctx context.Context) error {
		return client.DialAndSendWithContext(ctx, email)
	})
}
