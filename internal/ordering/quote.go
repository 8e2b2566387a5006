package ordering

import (
	"fmt"
	"strings"
	"time"

	"github.com/jogardn/bakery-orders/pkg/models"
)

const (
	DateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Violation is a single field-level problem with an order request.
type Violation struct {
	Field   string
	Message string
}

// ValidationError collects every violation found in one pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// ValidateBoxes checks box sizes and that each box is filled exactly.
func ValidateBoxes(boxes []models.Box) error {
	verr := &ValidationError{}
	if len(boxes) == 0 {
		verr.add("boxes", "at least one box is required")
		return verr
	}
	for i, box := range boxes {
		field := fmt.Sprintf("boxes[%d]", i)
		if !box.Size.Valid() {
			verr.add(field+".size", "box %d has size %d, must be 4, 6 or 12", i+1, box.Size)
			continue
		}
		if len(box.Items) == 0 {
			verr.add(field+".items", "box %d has no items", i+1)
			continue
		}
		sum := 0
		for j, item := range box.Items {
			if item.ProductID == "" {
				verr.add(fmt.Sprintf("%s.items[%d].product_id", field, j), "box %d item %d has no product", i+1, j+1)
			}
			if item.Quantity < 1 {
				verr.add(fmt.Sprintf("%s.items[%d].quantity", field, j), "box %d item %d quantity must be at least 1", i+1, j+1)
			}
			sum += item.Quantity
		}
		if sum != int(box.Size) {
			verr.add(field, "box %d of %d must contain exactly %d items, got %d", i+1, box.Size, box.Size, sum)
		}
	}
	return verr.orNil()
}

// ValidateReception checks the mode-specific fields of a reception.
func ValidateReception(s Settings, r models.Reception) error {
	verr := &ValidationError{}
	switch v := r.(type) {
	case models.PickupReception:
		if !s.IsPickupLocation(v.Location) {
			verr.add("reception.location", "invalid pickup location %q", v.Location)
		}
	case models.DeliveryReception:
		if !s.IsDeliveryCity(v.City) {
			verr.add("reception.city", "invalid delivery city %q", v.City)
		}
		if strings.TrimSpace(v.Street) == "" {
			verr.add("reception.street", "delivery street address is required")
		}
		if strings.TrimSpace(v.PostalCode) == "" {
			verr.add("reception.postal_code", "postal code is required")
		}
	case nil:
		verr.add("reception", "reception mode is required")
		return verr
	default:
		verr.add("reception", "unsupported reception mode")
		return verr
	}
	date, clock := r.Slot()
	if _, err := ParseDate(date); err != nil {
		verr.add("reception.date", "date must be formatted YYYY-MM-DD")
	}
	if !ValidClock(clock) {
		verr.add("reception.time", "time must be formatted HH:MM")
	}
	return verr.orNil()
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// ValidClock accepts 24h HH:MM.
func ValidClock(s string) bool {
	_, _, err := parseClock(s)
	return err == nil
}

func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(clockLayout, s)
	// "15" also parses a single-digit hour; schedules store "09:30", not "9:30".
	if err != nil || t.Format(clockLayout) != s {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

// DeliverySurcharge returns the rule's amount when date falls on the rule's
// weekday and clock is at or after its hour, zero otherwise.
func DeliverySurcharge(rule SurchargeRule, date, clock string) (int64, error) {
	day, err := ParseDate(date)
	if err != nil {
		return 0, fmt.Errorf("parse delivery date: %w", err)
	}
	hour, _, err := parseClock(clock)
	if err != nil {
		return 0, err
	}
	if day.Weekday() == rule.Weekday && hour >= rule.Hour {
		return rule.AmountCents, nil
	}
	return 0, nil
}

// Totals is the server-side price of an order.
type Totals struct {
	Boxes            []models.Box
	SubtotalCents    int64
	DeliveryFeeCents int64
	TotalCents       int64
}

// Quote fills each box's price from the price list and adds the delivery
// surcharge. Client-supplied box prices are ignored.
func Quote(pricing models.BoxPricing, boxes []models.Box, r models.Reception, rule SurchargeRule) (Totals, error) {
	q := Totals{Boxes: make([]models.Box, len(boxes))}
	for i, box := range boxes {
		price, err := pricing.PriceFor(box.Size)
		if err != nil {
			return Totals{}, err
		}
		box.PriceCents = price
		q.Boxes[i] = box
		q.SubtotalCents += price
	}
	if d, ok := r.(models.DeliveryReception); ok {
		fee, err := DeliverySurcharge(rule, d.Date, d.Time)
		if err != nil {
			return Totals{}, err
		}
		q.DeliveryFeeCents = fee
	}
	q.TotalCents = q.SubtotalCents + q.DeliveryFeeCents
	return q, nil
}
