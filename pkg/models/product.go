package models

import "time"

type Product struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	PriceCents  int64      `json:"price_cents"`
	Image       string     `json:"image"`
	Flavor      string     `json:"flavor"`
	Available   bool       `json:"available"`
	Stock       int        `json:"stock"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"`
}

// Orderable reports whether the product may be placed in a new box.
func (p *Product) Orderable() bool {
	return p.DeletedAt == nil && p.Available
}
