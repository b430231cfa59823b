package pricing

import "github.com/shopspring/decimal"

// ServiceKind enumerates the services a customer can book.
type ServiceKind string

const (
	Moving   ServiceKind = "moving"
	Cleaning ServiceKind = "cleaning"
	Handyman ServiceKind = "handyman"
)

// Kinds lists every supported service kind.
func Kinds() []ServiceKind {
	return []ServiceKind{Moving, Cleaning, Handyman}
}

// Label returns the customer-facing service name.
func (k ServiceKind) Label() string {
	switch k {
	case Moving:
		return "Moving Service"
	case Cleaning:
		return "Cleaning Service"
	case Handyman:
		return "Handyman Service"
	default:
		return string(k)
	}
}

// PropertyType enumerates the property categories used by the rate table.
type PropertyType string

const (
	House     PropertyType = "house"
	Condo     PropertyType = "condo"
	Apartment PropertyType = "apartment"
	Office    PropertyType = "office"
)

// PropertyTypes lists every supported property type.
func PropertyTypes() []PropertyType {
	return []PropertyType{House, Condo, Apartment, Office}
}

// Request describes a property and the services wanted for it. Callers must
// validate it first: services non-empty and distinct, bedrooms and bathrooms
// at least 1, square footage at least 100.
type Request struct {
	Services      []ServiceKind
	PropertyType  PropertyType
	Bedrooms      int
	Bathrooms     int
	SquareFootage decimal.Decimal
}

// Charge is one additional line on a service. Zero amounts are notes.
type Charge struct {
	Label  string `json:"label"`
	Amount Money  `json:"amount"`
}

// LineItem is the priced result for a single service.
type LineItem struct {
	Kind              ServiceKind `json:"kind"`
	Service           string      `json:"service"`
	BasePrice         Money       `json:"basePrice"`
	AdditionalCharges []Charge    `json:"additionalCharges"`
	Subtotal          Money       `json:"subtotal"`
}

// Breakdown is the full itemised quote.
type Breakdown struct {
	Items          []LineItem `json:"services"`
	Subtotal       Money      `json:"subtotal"`
	BundleDiscount Money      `json:"bundleDiscount"`
	Taxes          Money      `json:"taxes"`
	Total          Money      `json:"total"`
	Currency       string     `json:"currency"`
}

// TotalMinor returns the total in integer cents.
func (b Breakdown) TotalMinor() int64 {
	return ToMinorUnits(b.Total)
}

// Kinds returns the service kinds in line-item order.
func (b Breakdown) Kinds() []ServiceKind {
	kinds := make([]ServiceKind, 0, len(b.Items))
	for _, item := range b.Items {
		kinds = append(kinds, item.Kind)
	}
	return kinds
}

// Compute prices the request against the rate table. It performs no I/O and
// holds no state, so it is safe for concurrent use.
func Compute(req Request, rules Rules) Breakdown {
	items := make([]LineItem, 0, len(req.Services))
	subtotal := decimal.Zero
	for _, kind := range req.Services {
		var item LineItem
		switch kind {
		case Moving:
			item = priceMoving(req, rules)
		case Cleaning:
			item = priceCleaning(req, rules)
		case Handyman:
			item = priceHandyman(req, rules)
		default:
			continue
		}
		items = append(items, item)
		subtotal = subtotal.Add(item.Subtotal)
	}

	discount := decimal.Zero
	if len(items) > 1 {
		discount = RoundCents(subtotal.Mul(rules.BundleDiscountRate))
	}
	taxable := subtotal.Sub(discount)
	taxes := RoundCents(taxable.Mul(rules.TaxRate))

	return Breakdown{
		Items:          items,
		Subtotal:       subtotal,
		BundleDiscount: discount,
		Taxes:          taxes,
		Total:          taxable.Add(taxes),
		Currency:       rules.Currency,
	}
}

func newLineItem(kind ServiceKind, base Money, charges []Charge) LineItem {
	base = RoundCents(base)
	subtotal := base
	for i := range charges {
		charges[i].Amount = RoundCents(charges[i].Amount)
		subtotal = subtotal.Add(charges[i].Amount)
	}
	if charges == nil {
		charges = []Charge{}
	}
	return LineItem{
		Kind:              kind,
		Service:           kind.Label(),
		BasePrice:         base,
		AdditionalCharges: charges,
		Subtotal:          subtotal,
	}
}
