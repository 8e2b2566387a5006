// Package payment talks to a Stripe-compatible payment-intent API over
// plain HTTPS.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jogardn/bakery-orders/internal/circuitbreaker"
)

const StatusSucceeded = "succeeded"

// PendingOrder is the order_id metadata of intents created before their
// order exists.
const PendingOrder = "pending"

var ErrNotConfigured = errors.New("payment provider is not configured")

// Intent is the subset of a payment intent the bakery relies on.
type Intent struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Metadata     map[string]string `json:"metadata"`
}

func (i *Intent) Succeeded() bool { return i.Status == StatusSucceeded }

// ProviderError is a 4xx answer from the provider: the request was wrong,
// the provider is fine.
type ProviderError struct {
	StatusCode int
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider rejected request (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// IsFailure reports whether err should count against the provider's breaker.
func IsFailure(err error) bool {
	var pe *ProviderError
	return !errors.As(err, &pe)
}

type Client struct {
	baseURL   string
	secretKey string
	currency  string
	client    *http.Client
	breaker   *circuitbreaker.CircuitBreaker
}

func NewClient(baseURL, secretKey, currency string, breaker *circuitbreaker.CircuitBreaker) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		currency:  strings.ToLower(currency),
		client:    &http.Client{Timeout: 15 * time.Second},
		breaker:   breaker,
	}
}

func (c *Client) Configured() bool { return c != nil && c.secretKey != "" }

// Currency is the lower-case ISO code intents are created in.
func (c *Client) Currency() string { return c.currency }

// CreateIntent creates an intent for amountCents in the client's currency.
// orderID may be empty when the order does not exist yet.
func (c *Client) CreateIntent(ctx context.Context, amountCents int64, orderID string) (*Intent, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amountCents)
	}
	if orderID == "" {
		orderID = PendingOrder
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", c.currency)
	form.Set("metadata[order_id]", orderID)
	form.Set("automatic_payment_methods[enabled]", "true")

	var intent Intent
	err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, &intent)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) GetIntent(ctx context.Context, id string) (*Intent, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if id == "" || strings.ContainsAny(id, "/?#") {
		return nil, &ProviderError{StatusCode: http.StatusBadRequest, Code: "invalid_id", Message: "invalid payment intent id"}
	}

	var intent Intent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("call payment provider: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			var envelope struct {
				Error ProviderError `json:"error"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&envelope)
			envelope.Error.StatusCode = resp.StatusCode
			return &envelope.Error
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("payment provider returned status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode payment intent: %w", err)
		}
		return nil
	})
}
