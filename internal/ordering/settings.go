package ordering

import "time"

// SurchargeRule adds a flat delivery fee to slots on Weekday at or after Hour.
type SurchargeRule struct {
	Weekday     time.Weekday
	Hour        int
	AmountCents int64
}

// Settings holds the shop-specific choices an order is validated against.
type Settings struct {
	PickupLocations []string
	DeliveryCities  []string
	Surcharge       SurchargeRule
}

func DefaultSettings() Settings {
	return Settings{
		PickupLocations: []string{"laval", "montreal", "repentigny"},
		DeliveryCities:  []string{"montreal", "laval", "repentigny", "assomption", "terrebonne"},
		Surcharge: SurchargeRule{
			Weekday:     time.Thursday,
			Hour:        18,
			AmountCents: 500,
		},
	}
}

func (s Settings) IsPickupLocation(loc string) bool {
	return contains(s.PickupLocations, loc)
}

func (s Settings) IsDeliveryCity(city string) bool {
	return contains(s.DeliveryCities, city)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
