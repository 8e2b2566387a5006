package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type OrderStatus string

const (
	StatusReceived   OrderStatus = "received"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
)

var nextStatus = map[OrderStatus]OrderStatus{
	StatusReceived:   StatusProcessing,
	StatusProcessing: StatusCompleted,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusReceived, StatusProcessing, StatusCompleted:
		return true
	}
	return false
}

// CanTransition allows only the single forward step of the
// received -> processing -> completed progression.
func CanTransition(from, to OrderStatus) bool {
	next, ok := nextStatus[from]
	return ok && next == to
}

type PaymentMethod string

const (
	PaymentOnSite PaymentMethod = "on_site"
	PaymentOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentOnSite || m == PaymentOnline
}

type Order struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id,omitempty"`
	Guest            *GuestContact    `json:"guest,omitempty"`
	Boxes            []Box            `json:"boxes"`
	SubtotalCents    int64            `json:"subtotal_cents"`
	DeliveryFeeCents int64            `json:"delivery_fee_cents"`
	TotalCents       int64            `json:"total_cents"`
	Status           OrderStatus      `json:"status"`
	Reception        ReceptionDetails `json:"reception"`
	PaymentMethod    PaymentMethod    `json:"payment_method"`
	PaymentConfirmed bool             `json:"payment_confirmed"`
	PaymentIntentID  string           `json:"payment_intent_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Number is the short reference shown to customers.
func (o *Order) Number() string {
	if len(o.ID) <= 6 {
		return o.ID
	}
	return o.ID[len(o.ID)-6:]
}

func (o *Order) IsGuest() bool {
	return o.UserID == ""
}

type GuestContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Box struct {
	Size       BoxSize   `json:"size"`
	PriceCents int64     `json:"price_cents"`
	Items      []BoxItem `json:"items"`
}

type BoxItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
}

type ReceptionMode string

const (
	ModePickup   ReceptionMode = "pickup"
	ModeDelivery ReceptionMode = "delivery"
)

// Reception is either a PickupReception or a DeliveryReception.
type Reception interface {
	Mode() ReceptionMode
	// Slot returns the calendar date (YYYY-MM-DD) and time (HH:MM).
	Slot() (date, clock string)
	isReception()
}

type PickupReception struct {
	Location string `json:"location"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

func (PickupReception) Mode() ReceptionMode      { return ModePickup }
func (p PickupReception) Slot() (string, string) { return p.Date, p.Time }
func (PickupReception) isReception()             {}

type DeliveryReception struct {
	City         string `json:"city"`
	Street       string `json:"street"`
	PostalCode   string `json:"postal_code"`
	Instructions string `json:"instructions,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

func (DeliveryReception) Mode() ReceptionMode      { return ModeDelivery }
func (d DeliveryReception) Slot() (string, string) { return d.Date, d.Time }
func (DeliveryReception) isReception()             {}

// ReceptionDetails carries a Reception through JSON as a "mode"-tagged object.
type ReceptionDetails struct {
	Reception
}

func (r ReceptionDetails) MarshalJSON() ([]byte, error) {
	switch v := r.Reception.(type) {
	case PickupReception:
		return json.Marshal(struct {
			Mode ReceptionMode `json:"mode"`
			PickupReception
		}{ModePickup, v})
	case DeliveryReception:
		return json.Marshal(struct {
			Mode ReceptionMode `json:"mode"`
			DeliveryReception
		}{ModeDelivery, v})
	case nil:
		return []byte("null"), nil
	}
	return nil, fmt.Errorf("unsupported reception %T", r.Reception)
}

func (r *ReceptionDetails) UnmarshalJSON(data []byte) error {
	var head struct {
		Mode ReceptionMode `json:"mode"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Mode {
	case ModePickup:
		var p PickupReception
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		r.Reception = p
	case ModeDelivery:
		var d DeliveryReception
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		r.Reception = d
	default:
		return fmt.Errorf("unknown reception mode %q", head.Mode)
	}
	return nil
}

// OrderUpdate is the administrator's order mutation.
type OrderUpdate struct {
	Status           *OrderStatus `json:"status"`
	PaymentConfirmed *bool        `json:"payment_confirmed"`
}
