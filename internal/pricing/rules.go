package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// PriceRange is a configured [Min, Max] price band.
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Midpoint returns the representative price for the band.
func (r PriceRange) Midpoint() decimal.Decimal {
	return r.Min.Add(r.Max).Div(decimal.NewFromInt(2))
}

func (r PriceRange) validate(name string) error {
	if r.Min.IsNegative() || r.Max.IsNegative() {
		return fmt.Errorf("%s: negative rate", name)
	}
	if r.Min.GreaterThan(r.Max) {
		return fmt.Errorf("%s: min exceeds max", name)
	}
	return nil
}

// SizeBands splits properties into small, medium and large by square footage.
// A property falls in a band when its footage is strictly below the threshold.
type SizeBands struct {
	SmallBelow  decimal.Decimal `json:"smallBelow"`
	MediumBelow decimal.Decimal `json:"mediumBelow"`
}

func (b SizeBands) validate(name string) error {
	if !b.SmallBelow.IsPositive() {
		return fmt.Errorf("%s: small band threshold must be positive", name)
	}
	if !b.MediumBelow.GreaterThan(b.SmallBelow) {
		return fmt.Errorf("%s: band thresholds must be strictly increasing", name)
	}
	return nil
}

type band int

const (
	bandSmall band = iota
	bandMedium
	bandLarge
)

func (b SizeBands) classify(sqft decimal.Decimal) band {
	switch {
	case sqft.LessThan(b.SmallBelow):
		return bandSmall
	case sqft.LessThan(b.MediumBelow):
		return bandMedium
	default:
		return bandLarge
	}
}

// MovingRates configures the moving estimate.
type MovingRates struct {
	HourlyPerMover       PriceRange      `json:"hourlyPerMover"`
	CrewSize             int             `json:"crewSize"`
	MinimumHours         decimal.Decimal `json:"minimumHours"`
	PerExtraBedroomHours decimal.Decimal `json:"perExtraBedroomHours"`
	ApartmentHours       decimal.Decimal `json:"apartmentHours"`
	SmallHours           decimal.Decimal `json:"smallHours"`
	MediumHours          decimal.Decimal `json:"mediumHours"`
	LargeHours           decimal.Decimal `json:"largeHours"`
	Bands                SizeBands       `json:"bands"`
	TruckFee             decimal.Decimal `json:"truckFee"`
}

// CleaningRates configures the cleaning estimate.
type CleaningRates struct {
	OneBedroomCondo        PriceRange      `json:"oneBedroomCondo"`
	TwoBedroomCondo        PriceRange      `json:"twoBedroomCondo"`
	LargeCondo             PriceRange      `json:"largeCondo"`
	SmallHome              PriceRange      `json:"smallHome"`
	MediumHome             PriceRange      `json:"mediumHome"`
	LargeHome              PriceRange      `json:"largeHome"`
	Bands                  SizeBands       `json:"bands"`
	IncludedBedrooms       int             `json:"includedBedrooms"`
	IncludedBathrooms      int             `json:"includedBathrooms"`
	LargePropertyThreshold decimal.Decimal `json:"largePropertyThreshold"`
	PerSquareFootOver      decimal.Decimal `json:"perSquareFootOver"`
}

// HandymanRates configures the handyman estimate.
type HandymanRates struct {
	GeneralHourly     PriceRange      `json:"generalHourly"`
	MinimumHours      decimal.Decimal `json:"minimumHours"`
	CommercialFeeRate decimal.Decimal `json:"commercialFeeRate"`
}

// RoomRates are the per-room surcharges applied past the included counts.
type RoomRates struct {
	Bedroom  decimal.Decimal `json:"bedroom"`
	Bathroom decimal.Decimal `json:"bathroom"`
}

// Rules is the immutable rate table handed to Compute.
type Rules struct {
	Currency           string          `json:"currency"`
	Moving             MovingRates     `json:"moving"`
	Cleaning           CleaningRates   `json:"cleaning"`
	Handyman           HandymanRates   `json:"handyman"`
	Rooms              RoomRates       `json:"rooms"`
	BundleDiscountRate decimal.Decimal `json:"bundleDiscountRate"`
	TaxRate            decimal.Decimal `json:"taxRate"`
}

// DefaultRules returns the production rate table (CAD, Ontario HST).
func DefaultRules() Rules {
	return Rules{
		Currency: "CAD",
		Moving: MovingRates{
			HourlyPerMover:       PriceRange{Min: dec(100), Max: dec(150)},
			CrewSize:             3,
			MinimumHours:         dec(2),
			PerExtraBedroomHours: dec(0.5),
			ApartmentHours:       dec(3),
			SmallHours:           dec(4),
			MediumHours:          dec(6),
			LargeHours:           dec(8),
			Bands:                SizeBands{SmallBelow: dec(1500), MediumBelow: dec(2500)},
			TruckFee:             dec(75),
		},
		Cleaning: CleaningRates{
			OneBedroomCondo:        PriceRange{Min: dec(150), Max: dec(180)},
			TwoBedroomCondo:        PriceRange{Min: dec(170), Max: dec(210)},
			LargeCondo:             PriceRange{Min: dec(190), Max: dec(240)},
			SmallHome:              PriceRange{Min: dec(250), Max: dec(350)},
			MediumHome:             PriceRange{Min: dec(350), Max: dec(450)},
			LargeHome:              PriceRange{Min: dec(400), Max: dec(550)},
			Bands:                  SizeBands{SmallBelow: dec(1500), MediumBelow: dec(2500)},
			IncludedBedrooms:       2,
			IncludedBathrooms:      2,
			LargePropertyThreshold: dec(2000),
			PerSquareFootOver:      dec(0.05),
		},
		Handyman: HandymanRates{
			GeneralHourly:     PriceRange{Min: dec(70), Max: dec(95)},
			MinimumHours:      dec(1),
			CommercialFeeRate: dec(0.2),
		},
		Rooms:              RoomRates{Bedroom: dec(25), Bathroom: dec(30)},
		BundleDiscountRate: dec(0.15),
		TaxRate:            dec(0.13),
	}
}

// Validate checks the structural invariants of the rate table.
func (r Rules) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	nonNegative := func(name string, values ...decimal.Decimal) {
		for _, v := range values {
			if v.IsNegative() {
				add(fmt.Errorf("%s: negative value %s", name, v))
			}
		}
	}
	fraction := func(name string, v decimal.Decimal) {
		if v.IsNegative() || v.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			add(fmt.Errorf("%s: must be within [0,1), got %s", name, v))
		}
	}

	m := r.Moving
	add(m.HourlyPerMover.validate("moving.hourlyPerMover"))
	add(m.Bands.validate("moving.bands"))
	if m.CrewSize <= 0 {
		add(errors.New("moving.crewSize: must be positive"))
	}
	nonNegative("moving", m.MinimumHours, m.PerExtraBedroomHours, m.ApartmentHours, m.SmallHours, m.MediumHours, m.LargeHours, m.TruckFee)
	if m.SmallHours.GreaterThan(m.MediumHours) || m.MediumHours.GreaterThan(m.LargeHours) {
		add(errors.New("moving: base hours must not decrease with property size"))
	}

	c := r.Cleaning
	add(c.OneBedroomCondo.validate("cleaning.oneBedroomCondo"))
	add(c.TwoBedroomCondo.validate("cleaning.twoBedroomCondo"))
	add(c.LargeCondo.validate("cleaning.largeCondo"))
	add(c.SmallHome.validate("cleaning.smallHome"))
	add(c.MediumHome.validate("cleaning.mediumHome"))
	add(c.LargeHome.validate("cleaning.largeHome"))
	add(c.Bands.validate("cleaning.bands"))
	if c.IncludedBedrooms < 0 || c.IncludedBathrooms < 0 {
		add(errors.New("cleaning: included room counts must not be negative"))
	}
	nonNegative("cleaning", c.LargePropertyThreshold, c.PerSquareFootOver)

	h := r.Handyman
	add(h.GeneralHourly.validate("handyman.generalHourly"))
	nonNegative("handyman", h.MinimumHours)
	fraction("handyman.commercialFeeRate", h.CommercialFeeRate)

	nonNegative("rooms", r.Rooms.Bedroom, r.Rooms.Bathroom)
	fraction("bundleDiscountRate", r.BundleDiscountRate)
	fraction("taxRate", r.TaxRate)
	if len(r.Currency) != 3 {
		add(fmt.Errorf("currency: expected ISO 4217 code, got %q", r.Currency))
	}
	return errors.Join(errs...)
}

// LoadRules reads a rate table from a JSON file. An empty path yields the
// defaults. Fields absent from the file keep their default values.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read pricing rules: %w", err)
	}
	if err := json.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("decode pricing rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("invalid pricing rules: %w", err)
	}
	return rules, nil
}
