package repo

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusExpired  QuoteStatus = "expired"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

// BookingStatuses lists every booking status in lifecycle order.
func BookingStatuses() []BookingStatus {
	return []BookingStatus{
		BookingStatusPending,
		BookingStatusConfirmed,
		BookingStatusInProgress,
		BookingStatusCompleted,
		BookingStatusCancelled,
	}
}

type BookingPriority string

const (
	PriorityLow    BookingPriority = "low"
	PriorityNormal BookingPriority = "normal"
	PriorityHigh   BookingPriority = "high"
	PriorityUrgent BookingPriority = "urgent"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type Customer struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Pricing holds the persisted price breakdown shared by quotes and bookings.
type Pricing struct {
	Breakdown      []byte          `json:"-"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	BundleDiscount decimal.Decimal `json:"bundleDiscount"`
	Taxes          decimal.Decimal `json:"taxes"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
}

// Property describes the priced property.
type Property struct {
	Services      []string        `json:"services"`
	PropertyType  string          `json:"propertyType"`
	Bedrooms      int32           `json:"bedrooms"`
	Bathrooms     int32           `json:"bathrooms"`
	SquareFootage decimal.Decimal `json:"squareFootage"`
}

type Quote struct {
	ID         uuid.UUID     `json:"id"`
	CustomerID uuid.NullUUID `json:"customerId"`
	Property
	Pricing
	Status    QuoteStatus `json:"status"`
	ExpiresAt time.Time   `json:"expiresAt"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type Booking struct {
	ID         uuid.UUID     `json:"id"`
	CustomerID uuid.UUID     `json:"customerId"`
	QuoteID    uuid.NullUUID `json:"quoteId"`
	Property
	Address         string    `json:"address"`
	City            string    `json:"city"`
	PostalCode      string    `json:"postalCode"`
	PreferredDate   time.Time `json:"preferredDate"`
	PreferredTime   string    `json:"preferredTime"`
	SpecialRequests *string   `json:"specialRequests,omitempty"`
	Pricing
	Status            BookingStatus   `json:"status"`
	Priority          BookingPriority `json:"priority"`
	AssignedTo        *string         `json:"assignedTo,omitempty"`
	EstimatedDuration *int32          `json:"estimatedDuration,omitempty"`
	ScheduledAt       *time.Time      `json:"scheduledAt,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// BookingWithCustomer is a booking joined with its customer contact.
type BookingWithCustomer struct {
	Booking
	Customer Customer `json:"customer"`
}

type Provider struct {
	ID              uuid.UUID       `json:"id"`
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Services        []string        `json:"services"`
	ServiceAreas    []string        `json:"serviceAreas"`
	WorkingHours    *string         `json:"workingHours,omitempty"`
	Rating          decimal.Decimal `json:"rating"`
	TotalJobs       int32           `json:"totalJobs"`
	IsActive        bool            `json:"isActive"`
	IsVerified      bool            `json:"isVerified"`
	BackgroundCheck bool            `json:"backgroundCheck"`
	Insurance       bool            `json:"insurance"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type Payment struct {
	ID            uuid.UUID     `json:"id"`
	BookingID     uuid.NullUUID `json:"bookingId"`
	QuoteID       uuid.NullUUID `json:"quoteId"`
	Provider      string        `json:"provider"`
	ProviderRef   string        `json:"providerRef"`
	ClientSecret  string        `json:"-"`
	AmountMinor   int64         `json:"amountMinor"`
	Currency      string        `json:"currency"`
	CustomerEmail *string       `json:"customerEmail,omitempty"`
	Status        PaymentStatus `json:"status"`
	Payload       []byte        `json:"-"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

type DomainEvent struct {
	ID          uuid.UUID `json:"id"`
	Topic       string    `json:"topic"`
	AggregateID uuid.UUID `json:"aggregateId"`
	Payload     []byte    `json:"payload"`
	OccurredAt  time.Time `json:"occurredAt"`
}
