// Package store defines the persistence boundary of the bakery service.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jogardn/bakery-orders/pkg/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique email or Google id is already taken.
	ErrConflict = errors.New("conflict")
	// ErrIntentInUse is returned when a payment intent is already attached
	// to another order.
	ErrIntentInUse = fmt.Errorf("%w: payment intent already used", ErrConflict)
)

type Store interface {
	Users() UserRepository
	Products() ProductRepository
	Orders() OrderRepository
	Reviews() ReviewRepository
	Gallery() GalleryRepository
	Schedules() ScheduleRepository
	Pricing() PricingRepository

	Ping(ctx context.Context) error
	Close() error
}

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	GetByResetToken(ctx context.Context, tokenHash string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	List(ctx context.Context) ([]models.User, error)
}

type ProductRepository interface {
	// List returns non-deleted products, newest first. Unavailable ones are
	// included only when includeUnavailable is set.
	List(ctx context.Context, includeUnavailable bool) ([]models.Product, error)
	Get(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, p *models.Product) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type OrderFilter struct {
	UserID string
}

type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, f OrderFilter) ([]models.Order, error)
	// Update persists status and payment fields.
	Update(ctx context.Context, o *models.Order) error
	// LinkGuestOrders attaches guest orders placed with email to userID and
	// returns how many were linked.
	LinkGuestOrders(ctx context.Context, userID, email string) (int64, error)
}

type ReviewRepository interface {
	Create(ctx context.Context, r *models.Review) error
	Get(ctx context.Context, id string) (*models.Review, error)
	List(ctx context.Context, approvedOnly bool) ([]models.Review, error)
	Update(ctx context.Context, r *models.Review) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type GalleryRepository interface {
	Create(ctx context.Context, p *models.GalleryPhoto) error
	// ListActive orders by position, then newest first.
	ListActive(ctx context.Context) ([]models.GalleryPhoto, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type ScheduleRepository interface {
	// Upsert creates or replaces the schedule for (location, date) and
	// returns the stored record.
	Upsert(ctx context.Context, s *models.PickupSchedule) error
	Find(ctx context.Context, location, date string) (*models.PickupSchedule, error)
	List(ctx context.Context) ([]models.PickupSchedule, error)
	// AvailableDates returns distinct available dates on or after from.
	AvailableDates(ctx context.Context, location, from string) ([]string, error)
	Delete(ctx context.Context, id string) error
}

type PricingRepository interface {
	// Get returns the stored price list, or the defaults when none was saved.
	Get(ctx context.Context) (models.BoxPricing, error)
	Save(ctx context.Context, p models.BoxPricing) error
}
