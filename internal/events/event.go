// Package events publishes order and review lifecycle events. Publishing is
// best effort: a failed publish is logged by the caller and never fails the
// request that produced the event.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jogardn/bakery-orders/pkg/models"
)

type Type string

const (
	OrderPlaced           Type = "order.placed"
	OrderStatusChanged    Type = "order.status_changed"
	OrderPaymentConfirmed Type = "order.payment_confirmed"
	ReviewSubmitted       Type = "review.submitted"
)

var AllTypes = []Type{OrderPlaced, OrderStatusChanged, OrderPaymentConfirmed, ReviewSubmitted}

type Event struct {
	ID         string             `json:"id"`
	Type       Type               `json:"type"`
	OrderID    string             `json:"order_id,omitempty"`
	ReviewID   string             `json:"review_id,omitempty"`
	Status     models.OrderStatus `json:"status,omitempty"`
	TotalCents int64              `json:"total_cents,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// Key is the entity id the event is about, used as the partition key.
func (e Event) Key() string {
	if e.OrderID != "" {
		return e.OrderID
	}
	return e.ReviewID
}

func NewOrderEvent(t Type, o *models.Order) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OrderID:    o.ID,
		Status:     o.Status,
		TotalCents: o.TotalCents,
		OccurredAt: time.Now().UTC(),
	}
}

func NewReviewEvent(r *models.Review) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       ReviewSubmitted,
		ReviewID:   r.ID,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
