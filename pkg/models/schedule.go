package models

import "time"

// PickupSchedule lists the pickup times offered at one location on one date.
type PickupSchedule struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	Date      string    `json:"date"`
	Times     []string  `json:"times"`
	Available bool      `json:"available"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Offers reports whether clock (HH:MM) is one of the schedule's pickup times.
func (s *PickupSchedule) Offers(clock string) bool {
	if !s.Available {
		return false
	}
	for _, t := range s.Times {
		if t == clock {
			return true
		}
	}
	return false
}
