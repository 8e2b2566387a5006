// Package memory is a mutex-guarded, process-local implementation of
// store.Store used by tests and by local runs without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

type Store struct {
	mu        sync.RWMutex
	users     map[string]models.User
	products  map[string]models.Product
	orders    map[string]models.Order
	reviews   map[string]models.Review
	gallery   map[string]models.GalleryPhoto
	schedules map[string]models.PickupSchedule
	pricing   *models.BoxPricing
}

func New() *Store {
	return &Store{
		users:     make(map[string]models.User),
		products:  make(map[string]models.Product),
		orders:    make(map[string]models.Order),
		reviews:   make(map[string]models.Review),
		gallery:   make(map[string]models.GalleryPhoto),
		schedules: make(map[string]models.PickupSchedule),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Users() store.UserRepository         { return users{s} }
func (s *Store) Products() store.ProductRepository   { return products{s} }
func (s *Store) Orders() store.OrderRepository       { return orders{s} }
func (s *Store) Reviews() store.ReviewRepository     { return reviews{s} }
func (s *Store) Gallery() store.GalleryRepository    { return gallery{s} }
func (s *Store) Schedules() store.ScheduleRepository { return schedules{s} }
func (s *Store) Pricing() store.PricingRepository    { return pricing{s} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

// Records are stored by value; slices are copied on the way in and out so
// callers never share backing arrays with the store.

func cloneOrder(o models.Order) models.Order {
	boxes := make([]models.Box, len(o.Boxes))
	for i, b := range o.Boxes {
		b.Items = append([]models.BoxItem(nil), b.Items...)
		boxes[i] = b
	}
	o.Boxes = boxes
	if o.Guest != nil {
		g := *o.Guest
		o.Guest = &g
	}
	return o
}

func cloneReview(r models.Review) models.Review {
	r.Photos = append([]string(nil), r.Photos...)
	if r.Reply != nil {
		reply := *r.Reply
		r.Reply = &reply
	}
	if r.Rating != nil {
		rating := *r.Rating
		r.Rating = &rating
	}
	return r
}

func cloneSchedule(sc models.PickupSchedule) models.PickupSchedule {
	sc.Times = append([]string(nil), sc.Times...)
	return sc
}

type users struct{ s *Store }

func (r users) Create(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrConflict
		}
		if u.GoogleID != "" && existing.GoogleID == u.GoogleID {
			return store.ErrConflict
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r users) Get(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (r users) find(match func(models.User) bool) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r users) GetByGoogleID(_ context.Context, googleID string) (*models.User, error) {
	if googleID == "" {
		return nil, store.ErrNotFound
	}
	return r.find(func(u models.User) bool { return u.GoogleID == googleID })
}

func (r users) GetByResetToken(_ context.Context, tokenHash string) (*models.User, error) {
	if tokenHash == "" {
		return nil, store.ErrNotFound
	}
	return r.find(func(u models.User) bool { return u.ResetTokenHash == tokenHash })
}

func (r users) Update(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	for id, existing := range r.s.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(existing.Email, u.Email) || (u.GoogleID != "" && existing.GoogleID == u.GoogleID) {
			return store.ErrConflict
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r users) List(_ context.Context) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type products struct{ s *Store }

func (r products) List(_ context.Context, includeUnavailable bool) ([]models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		if p.DeletedAt != nil || (!includeUnavailable && !p.Available) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r products) Get(_ context.Context, id string) (*models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok || p.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r products) Create(_ context.Context, p *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.products[p.ID] = *p
	return nil
}

func (r products) Update(_ context.Context, p *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.products[p.ID]
	if !ok || existing.DeletedAt != nil {
		return store.ErrNotFound
	}
	r.s.products[p.ID] = *p
	return nil
}

func (r products) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok || p.DeletedAt != nil {
		return store.ErrNotFound
	}
	p.DeletedAt = &at
	p.UpdatedAt = at
	r.s.products[id] = p
	return nil
}

type orders struct{ s *Store }

// intentTaken reports whether another order already holds intentID.
// Callers hold the lock.
func (r orders) intentTaken(orderID, intentID string) bool {
	if intentID == "" {
		return false
	}
	for id, o := range r.s.orders {
		if id != orderID && o.PaymentIntentID == intentID {
			return true
		}
	}
	return false
}

func (r orders) Create(_ context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.intentTaken(o.ID, o.PaymentIntentID) {
		return store.ErrIntentInUse
	}
	r.s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r orders) Get(_ context.Context, id string) (*models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r orders) List(_ context.Context, f store.OrderFilter) ([]models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Order, 0)
	for _, o := range r.s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r orders) Update(_ context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.orders[o.ID]
	if !ok {
		return store.ErrNotFound
	}
	if r.intentTaken(o.ID, o.PaymentIntentID) {
		return store.ErrIntentInUse
	}
	existing.Status = o.Status
	existing.PaymentMethod = o.PaymentMethod
	existing.PaymentConfirmed = o.PaymentConfirmed
	existing.PaymentIntentID = o.PaymentIntentID
	existing.UpdatedAt = o.UpdatedAt
	r.s.orders[o.ID] = existing
	return nil
}

func (r orders) LinkGuestOrders(_ context.Context, userID, email string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, o := range r.s.orders {
		if o.UserID != "" || o.Guest == nil || !strings.EqualFold(o.Guest.Email, email) {
			continue
		}
		o.UserID = userID
		r.s.orders[id] = o
		n++
	}
	return n, nil
}

type reviews struct{ s *Store }

func (r reviews) Create(_ context.Context, rv *models.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reviews[rv.ID] = cloneReview(*rv)
	return nil
}

func (r reviews) Get(_ context.Context, id string) (*models.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rv, ok := r.s.reviews[id]
	if !ok || rv.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	rv = cloneReview(rv)
	return &rv, nil
}

func (r reviews) List(_ context.Context, approvedOnly bool) ([]models.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Review, 0)
	for _, rv := range r.s.reviews {
		if rv.DeletedAt != nil || (approvedOnly && !rv.Approved) {
			continue
		}
		out = append(out, cloneReview(rv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r reviews) Update(_ context.Context, rv *models.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.reviews[rv.ID]
	if !ok || existing.DeletedAt != nil {
		return store.ErrNotFound
	}
	r.s.reviews[rv.ID] = cloneReview(*rv)
	return nil
}

func (r reviews) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rv, ok := r.s.reviews[id]
	if !ok || rv.DeletedAt != nil {
		return store.ErrNotFound
	}
	rv.DeletedAt = &at
	r.s.reviews[id] = rv
	return nil
}

type gallery struct{ s *Store }

func (r gallery) Create(_ context.Context, p *models.GalleryPhoto) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.gallery[p.ID] = *p
	return nil
}

func (r gallery) ListActive(_ context.Context) ([]models.GalleryPhoto, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.GalleryPhoto, 0)
	for _, p := range r.s.gallery {
		if p.DeletedAt != nil || !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r gallery) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.gallery[id]
	if !ok || p.DeletedAt != nil {
		return store.ErrNotFound
	}
	p.DeletedAt = &at
	p.Active = false
	r.s.gallery[id] = p
	return nil
}

type schedules struct{ s *Store }

func (r schedules) Upsert(_ context.Context, sc *models.PickupSchedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existing := range r.s.schedules {
		if existing.Location == sc.Location && existing.Date == sc.Date {
			sc.ID = id
			sc.CreatedAt = existing.CreatedAt
			break
		}
	}
	r.s.schedules[sc.ID] = cloneSchedule(*sc)
	return nil
}

func (r schedules) Find(_ context.Context, location, date string) (*models.PickupSchedule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sc := range r.s.schedules {
		if sc.Location == location && sc.Date == date {
			sc = cloneSchedule(sc)
			return &sc, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r schedules) List(_ context.Context) ([]models.PickupSchedule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.PickupSchedule, 0, len(r.s.schedules))
	for _, sc := range r.s.schedules {
		out = append(out, cloneSchedule(sc))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Location < out[j].Location
	})
	return out, nil
}

func (r schedules) AvailableDates(_ context.Context, location, from string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, sc := range r.s.schedules {
		if sc.Location != location || !sc.Available || len(sc.Times) == 0 || sc.Date < from || seen[sc.Date] {
			continue
		}
		seen[sc.Date] = true
		out = append(out, sc.Date)
	}
	sort.Strings(out)
	return out, nil
}

func (r schedules) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.schedules[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.schedules, id)
	return nil
}

type pricing struct{ s *Store }

func (r pricing) Get(_ context.Context) (models.BoxPricing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.pricing == nil {
		return models.DefaultBoxPricing(), nil
	}
	return *r.s.pricing, nil
}

func (r pricing) Save(_ context.Context, p models.BoxPricing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.pricing = &p
	return nil
}
