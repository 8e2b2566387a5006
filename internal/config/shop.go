package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jogardn/bakery-orders/internal/ordering"
)

// shopFile is the YAML layout of SHOP_SETTINGS_FILE. Omitted keys keep
// their defaults.
//
//	pickup_locations: [laval, montreal, repentigny]
//	delivery_cities: [montreal, laval]
//	surcharge:
//	  weekday: thursday
//	  hour: 18
//	  amount_cents: 500
type shopFile struct {
	PickupLocations []string `yaml:"pickup_locations"`
	DeliveryCities  []string `yaml:"delivery_cities"`
	Surcharge       *struct {
		Weekday     string `yaml:"weekday"`
		Hour        *int   `yaml:"hour"`
		AmountCents *int64 `yaml:"amount_cents"`
	} `yaml:"surcharge"`
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func LoadShopSettings(path string) (ordering.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ordering.Settings{}, fmt.Errorf("read shop settings: %w", err)
	}
	return ParseShopSettings(data)
}

func ParseShopSettings(data []byte) (ordering.Settings, error) {
	s := ordering.DefaultSettings()

	var f shopFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return s, fmt.Errorf("parse shop settings: %w", err)
	}
	if len(f.PickupLocations) > 0 {
		s.PickupLocations = lower(f.PickupLocations)
	}
	if len(f.DeliveryCities) > 0 {
		s.DeliveryCities = lower(f.DeliveryCities)
	}
	if sc := f.Surcharge; sc != nil {
		if sc.Weekday != "" {
			day, ok := weekdays[strings.ToLower(sc.Weekday)]
			if !ok {
				return s, fmt.Errorf("surcharge weekday %q is not a day of the week", sc.Weekday)
			}
			s.Surcharge.Weekday = day
		}
		if sc.Hour != nil {
			if *sc.Hour < 0 || *sc.Hour > 23 {
				return s, fmt.Errorf("surcharge hour must be within 0-23, got %d", *sc.Hour)
			}
			s.Surcharge.Hour = *sc.Hour
		}
		if sc.AmountCents != nil {
			if *sc.AmountCents < 0 {
				return s, fmt.Errorf("surcharge amount must not be negative")
			}
			s.Surcharge.AmountCents = *sc.AmountCents
		}
	}
	return s, nil
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if t := strings.ToLower(strings.TrimSpace(v)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
