package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/pkg/models"
)

// LiveFeed upgrades to the admin websocket feed. Browsers cannot set headers
// on websocket requests, so the token may come in the query string.
func (h *Handler) LiveFeed(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		h.fail(w, r, notFound("Live feed is not enabled"))
		return
	}
	raw := r.URL.Query().Get("token")
	if raw == "" {
		if v := r.Header.Get("Authorization"); len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			raw = strings.TrimSpace(v[7:])
		}
	}
	if raw == "" {
		h.fail(w, r, unauthorized("Authentication required"))
		return
	}
	u, err := h.auth.Resolve(r.Context(), raw)
	if errors.Is(err, auth.ErrInvalidToken) {
		err = unauthorized("Invalid or expired token")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !u.Role.Can(models.CapManageOrders) {
		h.fail(w, r, forbidden("You do not have permission to perform this action"))
		return
	}
	h.live.ServeClient(w, r, u.ID)
}

// Providers reports which providers are wired and their breaker state.
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"email_provider":     h.notifier.Provider(),
		"payment_configured": h.payments.Configured(),
		"captcha_enabled":    h.captcha.Enabled(),
	}
	if h.breakers != nil {
		data["circuit_breakers"] = h.breakers.Snapshots()
	}
	if h.live != nil {
		data["live_clients"] = h.live.ClientCount()
	}
	respondOK(w, http.StatusOK, "", data)
}

// ResetProvider closes a provider's breaker after an outage is known to be over.
func (h *Handler) ResetProvider(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if h.breakers == nil || !h.breakers.Reset(name) {
		h.fail(w, r, notFound("Unknown provider"))
		return
	}
	respondOK(w, http.StatusOK, "Circuit breaker reset", h.breakers.Get(name).Snapshot())
}
