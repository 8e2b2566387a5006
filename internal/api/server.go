// Package api serves the bakery's HTTP JSON API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/internal/circuitbreaker"
	"github.com/jogardn/bakery-orders/internal/events"
	"github.com/jogardn/bakery-orders/internal/notify"
	"github.com/jogardn/bakery-orders/internal/ordering"
	"github.com/jogardn/bakery-orders/internal/payment"
	"github.com/jogardn/bakery-orders/internal/ratelimit"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

// MaxBodyBytes fits a review with five 2 MiB photos once base64 encoded.
const MaxBodyBytes = 16 << 20

type Notifier interface {
	OrderConfirmation(ctx context.Context, to notify.Recipient, o *models.Order) error
	OrderCompleted(ctx context.Context, to notify.Recipient, o *models.Order) error
	PasswordReset(ctx context.Context, to notify.Recipient, token string) error
	Provider() string
}

type Payments interface {
	Configured() bool
	Currency() string
	CreateIntent(ctx context.Context, amountCents int64, orderID string) (*payment.Intent, error)
	GetIntent(ctx context.Context, id string) (*payment.Intent, error)
}

type Captcha interface {
	Enabled() bool
	Verify(ctx context.Context, token string) error
}

type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*auth.GoogleIdentity, error)
}

// LiveFeed pushes events to connected administrators.
type LiveFeed interface {
	ServeClient(w http.ResponseWriter, r *http.Request, userID string)
	ClientCount() int
}

type Deps struct {
	Store       store.Store
	Tokens      *auth.Tokens
	Notifier    Notifier
	Payments    Payments
	Captcha     Captcha
	Google      GoogleVerifier
	Publisher   events.Publisher
	Live        LiveFeed
	Breakers    *circuitbreaker.Manager
	Limiter     *ratelimit.Limiter
	Shop        ordering.Settings
	CORSOrigins []string
	Env         string
	Logger      *logrus.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Handler struct {
	store       store.Store
	tokens      *auth.Tokens
	auth        *auth.Middleware
	notifier    Notifier
	payments    Payments
	captcha     Captcha
	google      GoogleVerifier
	publisher   events.Publisher
	live        LiveFeed
	breakers    *circuitbreaker.Manager
	limiter     *ratelimit.Limiter
	shop        ordering.Settings
	corsOrigins []string
	development bool
	validate    *validator.Validate
	logger      *logrus.Logger
	now         func() time.Time
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		store:       d.Store,
		tokens:      d.Tokens,
		notifier:    d.Notifier,
		payments:    d.Payments,
		captcha:     d.Captcha,
		google:      d.Google,
		publisher:   d.Publisher,
		live:        d.Live,
		breakers:    d.Breakers,
		limiter:     d.Limiter,
		shop:        d.Shop,
		corsOrigins: d.CORSOrigins,
		development: d.Env == "development",
		validate:    newValidator(),
		logger:      d.Logger,
		now:         d.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.publisher == nil {
		h.publisher = events.Nop{}
	}
	h.auth = auth.NewMiddleware(d.Tokens, d.Store.Users(), respondWithError, d.Logger)
	return h
}

// Router builds the full route table. Middleware that must see unmatched
// routes and preflight requests wraps the router instead of being
// registered on it.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondWithError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	api := r.PathPrefix("/api").Subrouter()
	if h.limiter != nil {
		api.Use(h.limiter.Middleware(ratelimit.Rule{Name: "general", Limit: ratelimit.GeneralLimit, Window: ratelimit.DefaultWindow}))
	}
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	authed := func(f http.HandlerFunc, caps ...models.Capability) http.Handler {
		var next http.Handler = f
		for i := len(caps) - 1; i >= 0; i-- {
			next = h.auth.Require(caps[i])(next)
		}
		return h.auth.Authenticate(next)
	}
	optional := func(f http.HandlerFunc) http.Handler { return h.auth.Optional(f) }

	authRoutes := api.PathPrefix("/auth").Subrouter()
	h.strict(authRoutes)
	authRoutes.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	authRoutes.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	authRoutes.HandleFunc("/google", h.GoogleSignIn).Methods(http.MethodPost)
	authRoutes.HandleFunc("/forgot-password", h.ForgotPassword).Methods(http.MethodPost)
	authRoutes.HandleFunc("/reset-password", h.ResetPassword).Methods(http.MethodPost)
	authRoutes.Handle("/me", authed(h.Me)).Methods(http.MethodGet)
	authRoutes.Handle("/logout", optional(h.Logout)).Methods(http.MethodPost)

	api.Handle("/users", authed(h.ListUsers, models.CapManageUsers)).Methods(http.MethodGet)
	api.Handle("/users/{id}", authed(h.GetUser)).Methods(http.MethodGet)

	api.Handle("/products", optional(h.ListProducts)).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	api.Handle("/products", authed(h.CreateProduct, models.CapManageCatalog)).Methods(http.MethodPost)
	api.Handle("/products/{id}", authed(h.UpdateProduct, models.CapManageCatalog)).Methods(http.MethodPut)
	api.Handle("/products/{id}", authed(h.DeleteProduct, models.CapManageCatalog)).Methods(http.MethodDelete)

	api.Handle("/orders", authed(h.ListOrders)).Methods(http.MethodGet)
	api.Handle("/orders", optional(h.PlaceOrder)).Methods(http.MethodPost)
	api.Handle("/orders/{id}", authed(h.GetOrder)).Methods(http.MethodGet)
	api.Handle("/orders/{id}", authed(h.UpdateOrder, models.CapManageOrders)).Methods(http.MethodPut)

	api.Handle("/reviews", optional(h.ListReviews)).Methods(http.MethodGet)
	api.Handle("/reviews", optional(h.CreateReview)).Methods(http.MethodPost)
	api.Handle("/reviews/{id}/approve", authed(h.ApproveReview, models.CapModerateReview)).Methods(http.MethodPut)
	api.Handle("/reviews/{id}/reply", authed(h.ReplyToReview, models.CapModerateReview)).Methods(http.MethodPut)
	api.Handle("/reviews/{id}", authed(h.DeleteReview, models.CapModerateReview)).Methods(http.MethodDelete)

	api.HandleFunc("/gallery", h.ListGallery).Methods(http.MethodGet)
	api.Handle("/gallery", authed(h.AddGalleryPhoto, models.CapManageGallery)).Methods(http.MethodPost)
	api.Handle("/gallery/{id}", authed(h.DeleteGalleryPhoto, models.CapManageGallery)).Methods(http.MethodDelete)

	api.HandleFunc("/pickup-schedules/dates", h.PickupDates).Methods(http.MethodGet)
	api.Handle("/pickup-schedules/all", authed(h.ListSchedules, models.CapManageSchedule)).Methods(http.MethodGet)
	api.HandleFunc("/pickup-schedules", h.PickupTimes).Methods(http.MethodGet)
	api.Handle("/pickup-schedules", authed(h.SaveSchedule, models.CapManageSchedule)).Methods(http.MethodPost)
	api.Handle("/pickup-schedules/{id}", authed(h.DeleteSchedule, models.CapManageSchedule)).Methods(http.MethodDelete)

	api.HandleFunc("/pricing/boxes", h.GetPricing).Methods(http.MethodGet)
	api.Handle("/pricing/boxes", authed(h.UpdatePricing, models.CapManagePricing)).Methods(http.MethodPut)

	payments := api.PathPrefix("/payments").Subrouter()
	h.strict(payments)
	payments.Handle("/create-intent", optional(h.CreatePaymentIntent)).Methods(http.MethodPost)
	payments.Handle("/confirm", optional(h.ConfirmPayment)).Methods(http.MethodPost)

	api.HandleFunc("/admin/live", h.LiveFeed).Methods(http.MethodGet)
	api.Handle("/admin/providers", authed(h.Providers, models.CapManageOrders)).Methods(http.MethodGet)
	api.Handle("/admin/providers/{name}/reset", authed(h.ResetProvider, models.CapManageOrders)).Methods(http.MethodPost)

	var handler http.Handler = r
	handler = bodyLimitMiddleware(MaxBodyBytes)(handler)
	handler = corsMiddleware(h.corsOrigins)(handler)
	handler = loggingMiddleware(h.logger)(handler)
	handler = recoverMiddleware(h.logger)(handler)
	return handler
}

func (h *Handler) strict(r *mux.Router) {
	if h.limiter != nil {
		r.Use(h.limiter.Middleware(ratelimit.Rule{Name: "strict", Limit: ratelimit.StrictLimit, Window: ratelimit.DefaultWindow}))
	}
}

// RejectRateLimited renders the 429 envelope for the rate limiter.
func RejectRateLimited(w http.ResponseWriter, _ *http.Request, _ time.Duration) {
	respondWithError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithError(err).Error("Health check failed")
		respondWithJSON(w, http.StatusServiceUnavailable, models.Response{
			Success: false,
			Message: "Database connection failed",
			Data:    map[string]string{"status": "unhealthy", "service": "bakery-api"},
		})
		return
	}
	respondOK(w, http.StatusOK, "OK", map[string]interface{}{
		"status":  "healthy",
		"service": "bakery-api",
		"time":    h.now().UTC(),
	})
}
