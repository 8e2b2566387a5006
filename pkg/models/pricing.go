package models

import (
	"fmt"
	"time"
)

type BoxSize int

const (
	BoxOf4  BoxSize = 4
	BoxOf6  BoxSize = 6
	BoxOf12 BoxSize = 12
)

var BoxSizes = []BoxSize{BoxOf4, BoxOf6, BoxOf12}

func (s BoxSize) Valid() bool {
	switch s {
	case BoxOf4, BoxOf6, BoxOf12:
		return true
	}
	return false
}

// BoxPricing is the singleton price list for the three box sizes.
type BoxPricing struct {
	Price4    int64     `json:"price_4_cents"`
	Price6    int64     `json:"price_6_cents"`
	Price12   int64     `json:"price_12_cents"`
	UpdatedAt time.Time `json:"updated_at"`
}

func DefaultBoxPricing() BoxPricing {
	return BoxPricing{Price4: 1500, Price6: 2000, Price12: 3500}
}

func (p BoxPricing) PriceFor(size BoxSize) (int64, error) {
	switch size {
	case BoxOf4:
		return p.Price4, nil
	case BoxOf6:
		return p.Price6, nil
	case BoxOf12:
		return p.Price12, nil
	}
	return 0, fmt.Errorf("unknown box size %d", size)
}

// BySize renders the price list keyed by box size, as the ordering page expects.
func (p BoxPricing) BySize() map[string]int64 {
	return map[string]int64{
		"4":  p.Price4,
		"6":  p.Price6,
		"12": p.Price12,
	}
}

// BoxPricingUpdate carries a partial price update; nil fields are left unchanged.
type BoxPricingUpdate struct {
	Price4  *int64 `json:"price_4_cents"`
	Price6  *int64 `json:"price_6_cents"`
	Price12 *int64 `json:"price_12_cents"`
}

func (u BoxPricingUpdate) Empty() bool {
	return u.Price4 == nil && u.Price6 == nil && u.Price12 == nil
}

func (p BoxPricing) Apply(u BoxPricingUpdate) BoxPricing {
	if u.Price4 != nil {
		p.Price4 = *u.Price4
	}
	if u.Price6 != nil {
		p.Price6 = *u.Price6
	}
	if u.Price12 != nil {
		p.Price12 = *u.Price12
	}
	return p
}
