package notify

import (
	"github.com/sirupsen/logrus"

	"github.com/jogardn/bakery-orders/internal/circuitbreaker"
	"github.com/jogardn/bakery-orders/internal/config"
)

// providerOrder is the preference order when several providers are
// configured.
var providerOrder = []string{"sendgrid", "resend", "smtp"}

// Endpoints overrides provider URLs; zero values use the public APIs.
type Endpoints struct {
	SendGrid string
	Resend   string
}

// Resolve picks the first configured provider from providerOrder, wraps it
// in the shared throttle and falls back to a LogMailer when none is
// configured. It runs once at startup.
func Resolve(cfg config.EmailConfig, endpoints Endpoints, breakers *circuitbreaker.Manager, logger *logrus.Logger) Mailer {
	from := Sender{Email: cfg.From, Name: cfg.FromName}
	if endpoints.SendGrid == "" {
		endpoints.SendGrid = SendGridURL
	}
	if endpoints.Resend == "" {
		endpoints.Resend = ResendURL
	}

	var mailer Mailer
	for _, name := range providerOrder {
		breaker := func() *circuitbreaker.CircuitBreaker {
			return breakers.GetOrCreate(name, circuitbreaker.DefaultConfig())
		}
		switch {
		case name == "sendgrid" && cfg.SendGridKey != "":
			mailer = NewSendGrid(endpoints.SendGrid, cfg.SendGridKey, from, breaker())
		case name == "resend" && cfg.ResendKey != "":
			mailer = NewResend(endpoints.Resend, cfg.ResendKey, from, breaker())
		case name == "smtp" && cfg.SMTPHost != "":
			mailer = NewSMTP(SMTPSettings{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUser,
				Password: cfg.SMTPPassword,
			}, from, breaker())
		}
		if mailer != nil {
			break
		}
	}

	if mailer == nil {
		logger.Warn("No email provider configured, emails will only be logged")
		return NewLogMailer(logger)
	}
	logger.WithField("provider", mailer.Provider()).Info("Email provider selected")
	return NewThrottled(mailer, cfg.MaxPerSecond)
}
