package booking

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/quote"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

const dateLayout = "2006-01-02"

// Totals are the amounts the customer saw when submitting the form.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	BundleDiscount decimal.Decimal `json:"bundleDiscount"`
	Taxes          decimal.Decimal `json:"taxes"`
	Total          decimal.Decimal `json:"total"`
}

// SubmitInput is the booking request form.
type SubmitInput struct {
	QuoteID string `json:"quoteId" validate:"omitempty,uuid"`

	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Phone     string `json:"phone" validate:"required,min=10,max=30"`

	Services      []string        `json:"services" validate:"required,min=1,dive,oneof=moving cleaning handyman"`
	PropertyType  string          `json:"propertyType" validate:"required,oneof=house condo apartment office"`
	Bedrooms      int             `json:"bedrooms" validate:"gte=1,lte=50"`
	Bathrooms     int             `json:"bathrooms" validate:"gte=1,lte=50"`
	SquareFootage decimal.Decimal `json:"squareFootage" validate:"gte=100,lte=1000000"`

	Address         string `json:"address" validate:"required,max=255"`
	City            string `json:"city" validate:"required,max=100"`
	PostalCode      string `json:"postalCode" validate:"required,min=6,max=10"`
	PreferredDate   string `json:"preferredDate" validate:"required,datetime=2006-01-02"`
	PreferredTime   string `json:"preferredTime" validate:"required,oneof=morning afternoon evening flexible"`
	SpecialRequests string `json:"specialRequests" validate:"max=2000"`

	Subtotal       *decimal.Decimal `json:"subtotal"`
	BundleDiscount *decimal.Decimal `json:"bundleDiscount"`
	Taxes          *decimal.Decimal `json:"taxes"`
	Total          *decimal.Decimal `json:"total"`
}

func (in *SubmitInput) normalize() {
	trim := func(s *string) { *s = strings.TrimSpace(*s) }
	for _, s := range []*string{
		&in.QuoteID, &in.FirstName, &in.LastName, &in.Phone, &in.Address,
		&in.City, &in.PreferredDate, &in.SpecialRequests,
	} {
		trim(s)
	}
	for i, svc := range in.Services {
		in.Services[i] = strings.ToLower(strings.TrimSpace(svc))
	}
	in.PropertyType = strings.ToLower(strings.TrimSpace(in.PropertyType))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PostalCode = strings.ToUpper(strings.TrimSpace(in.PostalCode))
	in.PreferredTime = strings.ToLower(strings.TrimSpace(in.PreferredTime))
}

// validate checks struct rules, then that the preferred date is not in the past.
func (in SubmitInput) validate(today time.Time) error {
	if err := common.ValidateStruct(in); err != nil {
		return err
	}
	date, _ := time.Parse(dateLayout, in.PreferredDate)
	if date.Before(today) {
		return common.ValidationError(common.FieldError{
			Field:   "preferredDate",
			Rule:    "notpast",
			Message: "must not be in the past",
		})
	}
	return nil
}

func (in SubmitInput) quoteInput() quote.Input {
	q := quote.Input{
		Services:      append([]string(nil), in.Services...),
		PropertyType:  in.PropertyType,
		Bedrooms:      in.Bedrooms,
		Bathrooms:     in.Bathrooms,
		SquareFootage: in.SquareFootage,
	}
	return q
}

// clientTotals returns the submitted amounts when the client sent a total.
func (in SubmitInput) clientTotals() (Totals, bool) {
	if in.Total == nil {
		return Totals{}, false
	}
	t := Totals{Total: *in.Total}
	if in.Subtotal != nil {
		t.Subtotal = *in.Subtotal
	}
	if in.BundleDiscount != nil {
		t.BundleDiscount = *in.BundleDiscount
	}
	if in.Taxes != nil {
		t.Taxes = *in.Taxes
	}
	return t, true
}

// UpdateInput is the admin status update.
type UpdateInput struct {
	Status            string     `json:"status" validate:"required,oneof=pending confirmed in_progress completed cancelled"`
	Priority          string     `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	AssignedTo        *string    `json:"assignedTo" validate:"omitempty,max=200"`
	EstimatedDuration *int32     `json:"estimatedDuration" validate:"omitempty,gte=1,lte=10080"`
	ScheduledAt       *time.Time `json:"scheduledAt"`
}

// ListFilter narrows the admin booking list.
type ListFilter struct {
	Status *repo.BookingStatus
	From   *time.Time
	To     *time.Time
	Limit  int
}
