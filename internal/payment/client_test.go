package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/bakery-orders/internal/circuitbreaker"
)

func newBreaker() *circuitbreaker.CircuitBreaker {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return circuitbreaker.New(circuitbreaker.Config{
		Name:        "payments",
		MaxFailures: 2,
		Timeout:     time.Minute,
		IsFailure:   IsFailure,
	}, logger)
}

func TestCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "3500", r.PostForm.Get("amount"))
		assert.Equal(t, "cad", r.PostForm.Get("currency"))
		assert.Equal(t, "order-1", r.PostForm.Get("metadata[order_id]"))
		w.Write([]byte(`{"id":"pi_1","amount":3500,"currency":"cad","status":"requires_payment_method","client_secret":"pi_1_secret"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", "CAD", newBreaker())
	intent, err := c.CreateIntent(context.Background(), 3500, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
	assert.False(t, intent.Succeeded())
}

func TestGetIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payment_intents/pi_ok":
			w.Write([]byte(`{"id":"pi_ok","amount":2000,"status":"succeeded"}`))
		case "/v1/payment_intents/pi_missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent"}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	breaker := newBreaker()
	c := NewClient(srv.URL, "sk_test", "cad", breaker)
	ctx := context.Background()

	intent, err := c.GetIntent(ctx, "pi_ok")
	require.NoError(t, err)
	assert.True(t, intent.Succeeded())
	assert.Equal(t, int64(2000), intent.Amount)

	for i := 0; i < 3; i++ {
		_, err = c.GetIntent(ctx, "pi_missing")
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "resource_missing", pe.Code)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State(), "4xx answers do not open the breaker")

	_, err = c.GetIntent(ctx, "pi_boom")
	assert.Error(t, err)
	_, err = c.GetIntent(ctx, "pi_boom")
	assert.Error(t, err)
	_, err = c.GetIntent(ctx, "pi_ok")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestNotConfigured(t *testing.T) {
	c := NewClient("http://unused", "", "cad", newBreaker())
	_, err := c.CreateIntent(context.Background(), 100, "")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.GetIntent(context.Background(), "pi_1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
