package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/internal/captcha"
	"github.com/jogardn/bakery-orders/internal/circuitbreaker"
	"github.com/jogardn/bakery-orders/internal/events"
	"github.com/jogardn/bakery-orders/internal/notify"
	"github.com/jogardn/bakery-orders/internal/ordering"
	"github.com/jogardn/bakery-orders/internal/payment"
	"github.com/jogardn/bakery-orders/internal/ratelimit"
	"github.com/jogardn/bakery-orders/internal/store/memory"
	"github.com/jogardn/bakery-orders/pkg/models"
)

// Monday 10 March 2025, 10:00.
var testNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type sentEmail struct {
	kind  string
	to    notify.Recipient
	order *models.Order
	token string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (n *fakeNotifier) record(e sentEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, e)
	return nil
}

func (n *fakeNotifier) OrderConfirmation(_ context.Context, to notify.Recipient, o *models.Order) error {
	return n.record(sentEmail{kind: "confirmation", to: to, order: o})
}

func (n *fakeNotifier) OrderCompleted(_ context.Context, to notify.Recipient, o *models.Order) error {
	return n.record(sentEmail{kind: "completed", to: to, order: o})
}

func (n *fakeNotifier) PasswordReset(_ context.Context, to notify.Recipient, token string) error {
	return n.record(sentEmail{kind: "reset", to: to, token: token})
}

func (n *fakeNotifier) Provider() string { return "fake" }

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, e := range n.sent {
		out = append(out, e.kind)
	}
	return out
}

type fakePayments struct {
	configured bool
	intents    map[string]*payment.Intent
	created    []int64
}

func (p *fakePayments) Configured() bool { return p.configured }

func (p *fakePayments) Currency() string { return "cad" }

func (p *fakePayments) CreateIntent(_ context.Context, amount int64, orderID string) (*payment.Intent, error) {
	p.created = append(p.created, amount)
	if orderID == "" {
		orderID = payment.PendingOrder
	}
	in := &payment.Intent{
		ID:           "pi_" + uuid.NewString()[:8],
		Amount:       amount,
		Currency:     "cad",
		Status:       "requires_payment_method",
		ClientSecret: "secret",
		Metadata:     map[string]string{"order_id": orderID},
	}
	p.intents[in.ID] = in
	return in, nil
}

func (p *fakePayments) GetIntent(_ context.Context, id string) (*payment.Intent, error) {
	in, ok := p.intents[id]
	if !ok {
		return nil, &payment.ProviderError{StatusCode: http.StatusNotFound, Code: "resource_missing", Message: "No such payment_intent"}
	}
	return in, nil
}

type fakeGoogle struct {
	identity *auth.GoogleIdentity
	err      error
}

func (g *fakeGoogle) Verify(context.Context, string) (*auth.GoogleIdentity, error) {
	return g.identity, g.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	t        *testing.T
	store    *memory.Store
	tokens   *auth.Tokens
	notifier *fakeNotifier
	payments *fakePayments
	google   *fakeGoogle
	events   *eventRecorder
	breakers *circuitbreaker.Manager
	router   http.Handler
}

type envOption func(*Deps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := testLogger()
	env := &testEnv{
		t:        t,
		store:    memory.New(),
		tokens:   auth.NewTokens("test-secret", time.Hour),
		notifier: &fakeNotifier{},
		payments: &fakePayments{intents: map[string]*payment.Intent{}},
		google:   &fakeGoogle{err: auth.ErrGoogleToken},
		events:   &eventRecorder{},
		breakers: circuitbreaker.NewManager(logger),
	}
	deps := Deps{
		Store:       env.store,
		Tokens:      env.tokens,
		Notifier:    env.notifier,
		Payments:    env.payments,
		Captcha:     captcha.NewVerifier(captcha.Options{Env: "test"}, nil, logger),
		Google:      env.google,
		Publisher:   env.events,
		Breakers:    env.breakers,
		Shop:        ordering.DefaultSettings(),
		CORSOrigins: []string{"http://localhost:3000"},
		Env:         "test",
		Logger:      logger,
		Now:         func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.router = NewHandler(deps).Router()
	return env
}

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Count   *int                `json:"count"`
	Data    json.RawMessage     `json:"data"`
	Errors  []models.FieldError `json:"errors"`
}

func (e *testEnv) do(method, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func (e *testEnv) user(role models.Role, email string) (*models.User, string) {
	e.t.Helper()
	hash, err := auth.HashPassword("password123")
	require.NoError(e.t, err)
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         "User " + email,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	require.NoError(e.t, e.store.Users().Create(context.Background(), u))
	token, _, err := e.tokens.Issue(u)
	require.NoError(e.t, err)
	return u, token
}

func (e *testEnv) admin() (*models.User, string) {
	return e.user(models.RoleAdmin, "admin@bakery.test")
}

func (e *testEnv) product(name string, available bool) *models.Product {
	e.t.Helper()
	p := &models.Product{
		ID:        uuid.NewString(),
		Name:      name,
		Available: available,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(e.t, e.store.Products().Create(context.Background(), p))
	return p
}

func (e *testEnv) schedule(location, date string, times ...string) *models.PickupSchedule {
	e.t.Helper()
	s := &models.PickupSchedule{
		ID:        uuid.NewString(),
		Location:  location,
		Date:      date,
		Times:     times,
		Available: true,
	}
	require.NoError(e.t, e.store.Schedules().Upsert(context.Background(), s))
	return s
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, body.Success)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(http.MethodGet, "/api/nope", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, body.Success)
	require.Equal(t, "Route not found", body.Message)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := corsMiddleware([]string{"*"})(ok)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Origin", "http://any.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	h = corsMiddleware([]string{"*", "http://localhost:3000"})(ok)
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRecoverMiddleware(t *testing.T) {
	h := recoverMiddleware(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"success":false,"message":"Internal server error"}`, rec.Body.String())
}

func TestStrictRateLimitOnAuth(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryCounter(), false, RejectRateLimited, testLogger())
	env := newTestEnv(t, func(d *Deps) { d.Limiter = limiter })

	creds := map[string]string{"email": "nobody@bakery.test", "password": "whatever1"}
	for i := 0; i < ratelimit.StrictLimit; i++ {
		rec, _ := env.do(http.MethodPost, "/api/auth/login", creds, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, body := env.do(http.MethodPost, "/api/auth/login", creds, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.False(t, body.Success)

	rec, _ = env.do(http.MethodGet, "/api/products", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, "general limit is separate")
}

func TestFailHidesInternalErrors(t *testing.T) {
	h := &Handler{logger: testLogger()}
	rec := httptest.NewRecorder()
	h.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "pq:")

	h.development = true
	rec = httptest.NewRecorder()
	h.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: connection refused"))
	require.Contains(t, rec.Body.String(), "pq: connection refused")
}

func TestFailMapsProviderErrors(t *testing.T) {
	h := &Handler{logger: testLogger()}
	cases := []struct {
		err    error
		status int
	}{
		{captcha.ErrMissingToken, http.StatusBadRequest},
		{captcha.ErrRejected, http.StatusBadRequest},
		{captcha.ErrLowScore, http.StatusForbidden},
		{captcha.ErrUnavailable, http.StatusInternalServerError},
		{auth.ErrGoogleToken, http.StatusBadRequest},
		{auth.ErrGoogleNotConfigured, http.StatusInternalServerError},
		{&payment.ProviderError{StatusCode: 402, Message: "Your card was declined."}, http.StatusBadRequest},
		{payment.ErrNotConfigured, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.fail(rec, httptest.NewRequest(http.MethodPost, "/", nil), tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}
