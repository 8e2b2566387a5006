package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/bakery-orders/internal/ordering"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

type scheduleRequest struct {
	Location  string   `json:"location" validate:"required"`
	Date      string   `json:"date" validate:"required,date"`
	Times     []string `json:"times" validate:"required,min=1,dive,clock"`
	Available *bool    `json:"available"`
}

type pickupTimes struct {
	Location string   `json:"location"`
	Date     string   `json:"date"`
	Times    []string `json:"times"`
}

// PickupDates lists the upcoming dates with pickup available at a location.
func (h *Handler) PickupDates(w http.ResponseWriter, r *http.Request) {
	location := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("location")))
	if location == "" {
		h.fail(w, r, badRequest("location is required", field("location", "location is required")))
		return
	}
	today := h.now().Format(ordering.DateLayout)
	dates, err := h.store.Schedules().AvailableDates(r.Context(), location, today)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, dates, len(dates))
}

// PickupTimes answers with an empty list when nothing is offered.
func (h *Handler) PickupTimes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	location := strings.ToLower(strings.TrimSpace(q.Get("location")))
	date := strings.TrimSpace(q.Get("date"))

	var fields []models.FieldError
	if location == "" {
		fields = append(fields, field("location", "location is required"))
	}
	if date == "" {
		fields = append(fields, field("date", "date is required"))
	} else if _, err := ordering.ParseDate(date); err != nil {
		fields = append(fields, field("date", "date must be formatted YYYY-MM-DD"))
	}
	if len(fields) > 0 {
		h.fail(w, r, badRequest("Validation failed", fields...))
		return
	}

	out := pickupTimes{Location: location, Date: date, Times: []string{}}
	s, err := h.store.Schedules().Find(r.Context(), location, date)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		h.fail(w, r, err)
		return
	case s.Available:
		out.Times = s.Times
	}
	respondOK(w, http.StatusOK, "", out)
}

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.store.Schedules().List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, schedules, len(schedules))
}

// SaveSchedule creates or replaces the schedule of a location and date.
func (h *Handler) SaveSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	location := strings.ToLower(strings.TrimSpace(req.Location))
	if !h.shop.IsPickupLocation(location) {
		h.fail(w, r, badRequest("Invalid pickup location", field("location", "unknown pickup location")))
		return
	}

	times := dedupe(req.Times)
	sort.Strings(times)
	now := h.now().UTC()
	s := &models.PickupSchedule{
		ID:        uuid.NewString(),
		Location:  location,
		Date:      req.Date,
		Times:     times,
		Available: req.Available == nil || *req.Available,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.Schedules().Upsert(r.Context(), s); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"location": s.Location,
		"date":     s.Date,
		"times":    len(s.Times),
	}).Info("Pickup schedule saved")
	respondOK(w, http.StatusOK, "Pickup schedule saved", s)
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	err := h.store.Schedules().Delete(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		err = notFound("Pickup schedule not found")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Pickup schedule deleted", nil)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
