package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/internal/captcha"
	"github.com/jogardn/bakery-orders/internal/circuitbreaker"
	"github.com/jogardn/bakery-orders/internal/ordering"
	"github.com/jogardn/bakery-orders/internal/payment"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

// apiError is an error that already knows its HTTP status and the message
// the client may see.
type apiError struct {
	status  int
	message string
	fields  []models.FieldError
}

func (e *apiError) Error() string { return e.message }

func badRequest(message string, fields ...models.FieldError) *apiError {
	return &apiError{status: http.StatusBadRequest, message: message, fields: fields}
}

func unauthorized(message string) *apiError {
	return &apiError{status: http.StatusUnauthorized, message: message}
}

func forbidden(message string) *apiError {
	return &apiError{status: http.StatusForbidden, message: message}
}

func notFound(message string) *apiError {
	return &apiError{status: http.StatusNotFound, message: message}
}

func internal(message string) *apiError {
	return &apiError{status: http.StatusInternalServerError, message: message}
}

func field(name, message string) models.FieldError {
	return models.FieldError{Field: name, Message: message}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		code = http.StatusInternalServerError
		response = []byte(`{"success":false,"message":"Internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.Response{Success: false, Message: message})
}

func respondOK(w http.ResponseWriter, code int, message string, data interface{}) {
	respondWithJSON(w, code, models.Response{Success: true, Message: message, Data: data})
}

func respondList(w http.ResponseWriter, data interface{}, count int) {
	respondWithJSON(w, http.StatusOK, models.Response{Success: true, Count: &count, Data: data})
}

// fail maps err onto the error taxonomy and writes the envelope. Messages
// of unexpected errors are only shown in development.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		apiErr  *apiError
		verr    *ordering.ValidationError
		invalid validator.ValidationErrors
		perr    *payment.ProviderError
	)

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &verr):
		fields := make([]models.FieldError, 0, len(verr.Violations))
		for _, v := range verr.Violations {
			fields = append(fields, field(v.Field, v.Message))
		}
		apiErr = badRequest(verr.Error(), fields...)
	case errors.As(err, &invalid):
		apiErr = badRequest("Validation failed", fieldErrors(invalid)...)
	case errors.Is(err, store.ErrNotFound):
		apiErr = notFound("Resource not found")
	case errors.Is(err, store.ErrIntentInUse):
		apiErr = badRequest("Payment already used")
	case errors.Is(err, store.ErrConflict):
		apiErr = badRequest("Resource already exists")
	case errors.Is(err, captcha.ErrMissingToken), errors.Is(err, captcha.ErrRejected):
		apiErr = badRequest(capitalize(err.Error()))
	case errors.Is(err, captcha.ErrLowScore):
		apiErr = forbidden(capitalize(err.Error()))
	case errors.Is(err, auth.ErrGoogleToken):
		apiErr = badRequest("Invalid Google credential")
	case errors.As(err, &perr):
		apiErr = badRequest(perr.Message)
	case errors.Is(err, circuitbreaker.ErrOpen):
		apiErr = internal("Service temporarily unavailable, please try again later")
	default:
		apiErr = internal("Internal server error")
	}

	if apiErr.status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		if h.development && apiErr.message == "Internal server error" {
			apiErr = internal(err.Error())
		}
	}

	respondWithJSON(w, apiErr.status, models.Response{
		Success: false,
		Message: apiErr.message,
		Errors:  apiErr.fields,
	})
}

// decode reads a JSON body into dst and runs struct validation on it.
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("Request body too large")
		}
		return badRequest("Invalid request body")
	}
	return h.validate.Struct(dst)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return ordering.ValidClock(fl.Field().String())
	})
	v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := ordering.ParseDate(fl.Field().String())
		return err == nil
	})
	return v
}

func fieldErrors(errs validator.ValidationErrors) []models.FieldError {
	out := make([]models.FieldError, 0, len(errs))
	for _, fe := range errs {
		out = append(out, field(fieldPath(fe), fieldMessage(fe)))
	}
	return out
}

// fieldPath drops the request struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", name)
	case "eqfield":
		return fmt.Sprintf("%s must match %s", name, strings.ToLower(fe.Param()))
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s entries", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s entries", name, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	case "clock":
		return fmt.Sprintf("%s must be formatted HH:MM", name)
	case "date":
		return fmt.Sprintf("%s must be formatted YYYY-MM-DD", name)
	}
	return fmt.Sprintf("%s is invalid", name)
}
