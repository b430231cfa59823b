package quote

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/pricing"
)

// Input is the property and service selection submitted by the quote form.
type Input struct {
	Services      []string        `json:"services" validate:"required,min=1,dive,oneof=moving cleaning handyman"`
	PropertyType  string          `json:"propertyType" validate:"required,oneof=house condo apartment office"`
	Bedrooms      int             `json:"bedrooms" validate:"gte=1,lte=50"`
	Bathrooms     int             `json:"bathrooms" validate:"gte=1,lte=50"`
	SquareFootage decimal.Decimal `json:"squareFootage" validate:"gte=100,lte=1000000"`
}

// Normalize trims and lower-cases the enumerated fields in place.
func (in *Input) Normalize() {
	for i, s := range in.Services {
		in.Services[i] = strings.ToLower(strings.TrimSpace(s))
	}
	in.PropertyType = strings.ToLower(strings.TrimSpace(in.PropertyType))
}

// Validate reports every failing field as a VALIDATION_ERROR.
func (in Input) Validate() error {
	return common.ValidateStruct(in)
}

// Request converts the input into an engine request. Repeated services are
// collapsed to their first occurrence.
func (in Input) Request() pricing.Request {
	seen := make(map[pricing.ServiceKind]struct{}, len(in.Services))
	services := make([]pricing.ServiceKind, 0, len(in.Services))
	for _, s := range in.Services {
		kind := pricing.ServiceKind(s)
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}
		services = append(services, kind)
	}
	return pricing.Request{
		Services:      services,
		PropertyType:  pricing.PropertyType(in.PropertyType),
		Bedrooms:      in.Bedrooms,
		Bathrooms:     in.Bathrooms,
		SquareFootage: in.SquareFootage,
	}
}
