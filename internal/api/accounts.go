package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/internal/notify"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

const resetRequestedMessage = "If an account exists for this email, a password reset link has been sent"

type registerRequest struct {
	Name                 string `json:"name" validate:"required,max=100"`
	Email                string `json:"email" validate:"required,email,max=254"`
	Password             string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	CaptchaToken         string `json:"captcha_token"`
}

type loginRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required"`
	CaptchaToken string `json:"captcha_token"`
}

type googleRequest struct {
	Credential string `json:"credential" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token                string `json:"token" validate:"required"`
	Password             string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type session struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      *models.User `json:"user"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *Handler) issue(u *models.User) (*session, error) {
	token, expires, err := h.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &session{Token: token, ExpiresAt: expires.UTC().Format("2006-01-02T15:04:05Z"), User: u}, nil
}

// linkGuestOrders attaches earlier guest orders to a new account. Failure
// only costs the customer their order history, so it is logged.
func (h *Handler) linkGuestOrders(r *http.Request, u *models.User) {
	n, err := h.store.Orders().LinkGuestOrders(r.Context(), u.ID, u.Email)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", u.ID).Error("Failed to link guest orders")
		return
	}
	if n > 0 {
		h.logger.WithFields(logrus.Fields{"user_id": u.ID, "linked": n}).Info("Linked guest orders to new account")
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.captcha.Verify(r.Context(), req.CaptchaToken); err != nil {
		h.fail(w, r, err)
		return
	}

	email := normalizeEmail(req.Email)
	emailTaken := badRequest("An account with this email already exists", field("email", "email is already registered"))
	if _, err := h.store.Users().GetByEmail(r.Context(), email); err == nil {
		h.fail(w, r, emailTaken)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.fail(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(w, r, badRequest(err.Error(), field("password", err.Error())))
		return
	}
	now := h.now().UTC()
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Role:         models.RoleCustomer,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.Users().Create(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = emailTaken
		}
		h.fail(w, r, err)
		return
	}
	h.linkGuestOrders(r, u)

	s, err := h.issue(u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.WithField("user_id", u.ID).Info("User registered")
	respondOK(w, http.StatusCreated, "Account created", s)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.captcha.Verify(r.Context(), req.CaptchaToken); err != nil {
		h.fail(w, r, err)
		return
	}

	invalid := unauthorized("Invalid email or password")
	u, err := h.store.Users().GetByEmail(r.Context(), normalizeEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		h.fail(w, r, invalid)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !u.HasPassword() {
		h.fail(w, r, unauthorized("This account uses Google sign-in"))
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		h.fail(w, r, invalid)
		return
	}

	s, err := h.issue(u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Logged in", s)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, "", auth.UserFromContext(r.Context()))
}

// Logout exists for clients; tokens are stateless and simply discarded.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, "Logged out", nil)
}

// GoogleSignIn signs in with a Google ID token, linking an existing account
// with the same email or creating a new one.
func (h *Handler) GoogleSignIn(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.google.Verify(r.Context(), req.Credential)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	users := h.store.Users()
	email := normalizeEmail(id.Email)
	created := false

	u, err := users.GetByGoogleID(r.Context(), id.Subject)
	if errors.Is(err, store.ErrNotFound) {
		u, err = users.GetByEmail(r.Context(), email)
		switch {
		case err == nil:
			u.GoogleID = id.Subject
			u.UpdatedAt = h.now().UTC()
			err = users.Update(r.Context(), u)
		case errors.Is(err, store.ErrNotFound):
			name := strings.TrimSpace(id.Name)
			if name == "" {
				name, _, _ = strings.Cut(email, "@")
			}
			now := h.now().UTC()
			u = &models.User{
				ID:        uuid.NewString(),
				Name:      name,
				Email:     email,
				Role:      models.RoleCustomer,
				GoogleID:  id.Subject,
				CreatedAt: now,
				UpdatedAt: now,
			}
			err = users.Create(r.Context(), u)
			created = true
		}
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if created {
		h.linkGuestOrders(r, u)
	}

	s, err := h.issue(u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondOK(w, status, "Logged in with Google", s)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.store.Users().GetByEmail(r.Context(), normalizeEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		respondOK(w, http.StatusOK, resetRequestedMessage, nil)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	token, digest, err := auth.NewResetToken()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	expiry := h.now().UTC().Add(auth.ResetTokenTTL)
	u.ResetTokenHash = digest
	u.ResetTokenExpiry = &expiry
	u.UpdatedAt = h.now().UTC()
	if err := h.store.Users().Update(r.Context(), u); err != nil {
		h.fail(w, r, err)
		return
	}

	// The token stays valid when the email fails so a retry can reuse it.
	if err := h.notifier.PasswordReset(r.Context(), notify.Recipient{Name: u.Name, Email: u.Email}, token); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":  u.ID,
			"provider": h.notifier.Provider(),
		}).Warn("Failed to send password reset email")
		h.fail(w, r, internal("Failed to send the password reset email"))
		return
	}
	respondOK(w, http.StatusOK, resetRequestedMessage, nil)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	expired := badRequest(capitalize(auth.ErrResetTokenExpired.Error()))
	u, err := h.store.Users().GetByResetToken(r.Context(), auth.HashResetToken(req.Token))
	if errors.Is(err, store.ErrNotFound) {
		h.fail(w, r, expired)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := auth.CheckResetExpiry(u.ResetTokenExpiry, h.now()); err != nil {
		h.fail(w, r, expired)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(w, r, badRequest(err.Error(), field("password", err.Error())))
		return
	}
	u.PasswordHash = hash
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
	u.UpdatedAt = h.now().UTC()
	if err := h.store.Users().Update(r.Context(), u); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.WithField("user_id", u.ID).Info("Password reset")
	respondOK(w, http.StatusOK, "Password has been reset", nil)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.Users().List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, users, len(users))
}

// GetUser serves the caller's own record, or any record to user managers.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	id := mux.Vars(r)["id"]
	if caller.ID != id && !caller.Role.Can(models.CapManageUsers) {
		h.fail(w, r, forbidden("You do not have permission to view this user"))
		return
	}
	u, err := h.store.Users().Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		err = notFound("User not found")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", u)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
