package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jogardn/bakery-orders/pkg/models"
)

type Recipient struct {
	Name  string
	Email string
}

// Notifier renders and sends the three customer emails.
type Notifier struct {
	mailer      Mailer
	shop        string
	frontendURL string

	confirmation *page
	completed    *page
	reset        *page
}

func NewNotifier(mailer Mailer, shop, frontendURL string) (*Notifier, error) {
	n := &Notifier{mailer: mailer, shop: shop, frontendURL: frontendURL}
	var err error
	if n.confirmation, err = loadPage("confirmation"); err != nil {
		return nil, err
	}
	if n.completed, err = loadPage("completed"); err != nil {
		return nil, err
	}
	if n.reset, err = loadPage("reset"); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Notifier) Provider() string { return n.mailer.Provider() }

// OrderConfirmation is sent when an order enters processing.
func (n *Notifier) OrderConfirmation(ctx context.Context, to Recipient, o *models.Order) error {
	html, text, err := n.confirmation.render(newOrderView(n.shop, to.Name, o))
	if err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}
	return n.mailer.Send(ctx, Message{
		To:      to.Email,
		ToName:  to.Name,
		Subject: fmt.Sprintf("%s - Votre commande #%s est en traitement", n.shop, o.Number()),
		HTML:    html,
		Text:    text,
	})
}

// OrderCompleted thanks the customer and invites a review.
func (n *Notifier) OrderCompleted(ctx context.Context, to Recipient, o *models.Order) error {
	view := newOrderView(n.shop, to.Name, o)
	view.ReviewURL = n.frontendURL + "/commentaires"
	html, text, err := n.completed.render(view)
	if err != nil {
		return fmt.Errorf("render completed: %w", err)
	}
	return n.mailer.Send(ctx, Message{
		To:      to.Email,
		ToName:  to.Name,
		Subject: fmt.Sprintf("%s - Merci pour votre commande #%s !", n.shop, o.Number()),
		HTML:    html,
		Text:    text,
	})
}

func (n *Notifier) PasswordReset(ctx context.Context, to Recipient, token string) error {
	data := struct {
		Shop     string
		Name     string
		ResetURL string
	}{n.shop, to.Name, n.frontendURL + "/reset-password?token=" + url.QueryEscape(token)}

	html, text, err := n.reset.render(data)
	if err != nil {
		return fmt.Errorf("render reset: %w", err)
	}
	return n.mailer.Send(ctx, Message{
		To:      to.Email,
		ToName:  to.Name,
		Subject: fmt.Sprintf("%s - Réinitialisation de votre mot de passe", n.shop),
		HTML:    html,
		Text:    text,
	})
}
