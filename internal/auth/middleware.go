package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

type ctxKey struct{}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxKey{}).(*models.User)
	return u
}

// ErrorWriter renders an error response in the API's envelope.
type ErrorWriter func(w http.ResponseWriter, status int, message string)

type Middleware struct {
	tokens   *Tokens
	users    store.UserRepository
	writeErr ErrorWriter
	logger   *logrus.Logger
}

func NewMiddleware(tokens *Tokens, users store.UserRepository, writeErr ErrorWriter, logger *logrus.Logger) *Middleware {
	return &Middleware{tokens: tokens, users: users, writeErr: writeErr, logger: logger}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Resolve loads the user a raw token belongs to. The user must still exist.
func (m *Middleware) Resolve(ctx context.Context, raw string) (*models.User, error) {
	claims, err := m.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	u, err := m.users.Get(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	return u, err
}

// Authenticate rejects requests without a valid bearer token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearer(r)
		if raw == "" {
			m.writeErr(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		u, err := m.Resolve(r.Context(), raw)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) {
				m.logger.WithError(err).Error("Failed to load token user")
				m.writeErr(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			m.writeErr(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// Optional attaches the user when a valid token is present and otherwise
// lets the request through anonymously.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := bearer(r); raw != "" {
			if u, err := m.Resolve(r.Context(), raw); err == nil {
				r = r.WithContext(WithUser(r.Context(), u))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Require must run after Authenticate or Optional.
func (m *Middleware) Require(c models.Capability) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromContext(r.Context())
			if u == nil {
				m.writeErr(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !u.Role.Can(c) {
				m.logger.WithFields(logrus.Fields{
					"user_id":    u.ID,
					"capability": c,
				}).Warn("Forbidden request")
				m.writeErr(w, http.StatusForbidden, "You do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
