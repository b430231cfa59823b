package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MovingHours returns the billable hours estimated for a move.
func MovingHours(req Request, rates MovingRates) decimal.Decimal {
	var base decimal.Decimal
	if req.PropertyType == Apartment {
		base = rates.ApartmentHours
	} else {
		switch rates.Bands.classify(req.SquareFootage) {
		case bandSmall:
			base = rates.SmallHours
		case bandMedium:
			base = rates.MediumHours
		default:
			base = rates.LargeHours
		}
	}
	extra := rates.PerExtraBedroomHours.Mul(decimal.NewFromInt(int64(req.Bedrooms - 1)))
	return decimal.Max(rates.MinimumHours, base.Add(extra))
}

func priceMoving(req Request, rules Rules) LineItem {
	rates := rules.Moving
	hours := MovingHours(req, rates)
	crew := decimal.NewFromInt(int64(rates.CrewSize))
	base := rates.HourlyPerMover.Midpoint().Mul(crew).Mul(hours)
	return newLineItem(Moving, base, []Charge{
		{Label: fmt.Sprintf("%d movers × %sh", rates.CrewSize, hours.String()), Amount: decimal.Zero},
		{Label: "Truck & Equipment", Amount: rates.TruckFee},
	})
}

func priceCleaning(req Request, rules Rules) LineItem {
	rates := rules.Cleaning
	var tier PriceRange
	switch req.PropertyType {
	case Condo, Apartment:
		switch {
		case req.Bedrooms <= 1:
			tier = rates.OneBedroomCondo
		case req.Bedrooms == 2:
			tier = rates.TwoBedroomCondo
		default:
			tier = rates.LargeCondo
		}
	default:
		switch rates.Bands.classify(req.SquareFootage) {
		case bandSmall:
			tier = rates.SmallHome
		case bandMedium:
			tier = rates.MediumHome
		default:
			tier = rates.LargeHome
		}
	}

	var charges []Charge
	if extra := req.Bedrooms - rates.IncludedBedrooms; extra > 0 {
		charges = append(charges, Charge{
			Label:  fmt.Sprintf("+%d extra bedrooms", extra),
			Amount: rules.Rooms.Bedroom.Mul(decimal.NewFromInt(int64(extra))),
		})
	}
	if extra := req.Bathrooms - rates.IncludedBathrooms; extra > 0 {
		charges = append(charges, Charge{
			Label:  fmt.Sprintf("+%d extra bathrooms", extra),
			Amount: rules.Rooms.Bathroom.Mul(decimal.NewFromInt(int64(extra))),
		})
	}
	if req.SquareFootage.GreaterThan(rates.LargePropertyThreshold) {
		over := req.SquareFootage.Sub(rates.LargePropertyThreshold)
		charges = append(charges, Charge{
			Label:  fmt.Sprintf("Large property (>%s sqft)", rates.LargePropertyThreshold.String()),
			Amount: over.Mul(rates.PerSquareFootOver),
		})
	}
	return newLineItem(Cleaning, tier.Midpoint(), charges)
}

func priceHandyman(req Request, rules Rules) LineItem {
	rates := rules.Handyman
	base := RoundCents(rates.GeneralHourly.Midpoint().Mul(rates.MinimumHours))
	charges := []Charge{
		{Label: fmt.Sprintf("%sh minimum", rates.MinimumHours.String()), Amount: decimal.Zero},
	}
	if req.PropertyType == Office {
		charges = append(charges, Charge{
			Label:  "Commercial property fee",
			Amount: base.Mul(rates.CommercialFeeRate),
		})
	}
	return newLineItem(Handyman, base, charges)
}
