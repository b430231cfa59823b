package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/obs"
	"github.com/noah-isme/backend-maplefresh/internal/pricing"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

var (
	// ErrBookingNotFound is returned when the target booking does not exist.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrQuoteNotFound is returned when the target quote does not exist.
	ErrQuoteNotFound = errors.New("quote not found")
	// ErrQuoteExpired is returned when the target quote can no longer be paid.
	ErrQuoteExpired = errors.New("quote expired")
	// ErrNotPayable is returned when the booking is cancelled or already completed.
	ErrNotPayable = errors.New("booking cannot be paid")
	// ErrDisabled is returned when no payment provider is configured.
	ErrDisabled = errors.New("payments are not configured")
)

// Store captures the persistence methods required by the payment service.
type Store interface {
	GetBooking(ctx context.Context, id uuid.UUID) (repo.BookingWithCustomer, error)
	GetQuote(ctx context.Context, id uuid.UUID) (repo.Quote, error)
	CreatePayment(ctx context.Context, p repo.Payment) (repo.Payment, error)
	GetPaymentByProviderRef(ctx context.Context, provider, ref string) (repo.Payment, error)
	UpdatePaymentStatus(ctx context.Context, provider, ref string, status repo.PaymentStatus, payload []byte, now time.Time) (repo.Payment, error)
}

// Target names what is being paid for: a booking, or a quote plus the payer's email.
type Target struct {
	BookingID     string `json:"bookingId" validate:"required_without=QuoteID,omitempty,uuid"`
	QuoteID       string `json:"quoteId" validate:"omitempty,uuid"`
	CustomerEmail string `json:"customerEmail" validate:"required_with=QuoteID,omitempty,email"`
}

func (t *Target) normalize() {
	t.BookingID = strings.TrimSpace(t.BookingID)
	t.QuoteID = strings.TrimSpace(t.QuoteID)
	t.CustomerEmail = strings.ToLower(strings.TrimSpace(t.CustomerEmail))
}

func (t Target) kind() string {
	if t.BookingID != "" {
		return "booking"
	}
	return "quote"
}

// Intent is returned to the browser to confirm the payment client side.
type Intent struct {
	PaymentID       uuid.UUID `json:"paymentId"`
	Provider        string    `json:"provider"`
	PaymentIntentID string    `json:"paymentIntentId"`
	ClientSecret    string    `json:"clientSecret"`
	Amount          string    `json:"amount"`
	AmountMinor     int64     `json:"amountMinor"`
	Currency        string    `json:"currency"`
}

// Service opens payment intents for bookings and quotes.
type Service struct {
	Store       Store
	Provider    Provider
	CompanyName string
	Now         func() time.Time
}

// CreateIntent charges the stored total of the target. Client supplied amounts
// are never trusted.
func (s *Service) CreateIntent(ctx context.Context, t Target) (Intent, error) {
	if s == nil || s.Store == nil {
		return Intent{}, errors.New("payment service not configured")
	}
	if s.Provider == nil {
		return Intent{}, ErrDisabled
	}
	t.normalize()
	if err := common.ValidateStruct(t); err != nil {
		return Intent{}, err
	}

	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateIntent")
	defer span.End()
	start := time.Now()
	providerName := s.Provider.Name()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", providerName),
			attribute.String("payment.target", t.kind()),
			attribute.Float64("payment.intent.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.intent.result", result),
		)
		obs.Inc(obs.PaymentIntentTotal, providerName, t.kind(), result)
	}()

	record, req, err := s.prepare(ctx, t)
	if err != nil {
		result = "rejected"
		return Intent{}, err
	}
	resp, err := s.Provider.CreateIntent(ctx, req)
	if err != nil {
		span.RecordError(err)
		return Intent{}, err
	}

	payload, _ := json.Marshal(map[string]any{"intentId": resp.ID, "status": resp.Status, "metadata": req.Metadata})
	record.ID = uuid.New()
	record.Provider = providerName
	record.ProviderRef = resp.ID
	record.ClientSecret = resp.ClientSecret
	record.Status = repo.PaymentStatusPending
	record.Payload = payload
	record.CreatedAt = s.now()
	stored, err := s.Store.CreatePayment(ctx, record)
	if errors.Is(err, repo.ErrConflict) {
		// Stripe replays the original intent for a repeated idempotency key.
		stored, err = s.Store.GetPaymentByProviderRef(ctx, providerName, resp.ID)
		result = "reused"
	}
	if err != nil {
		return Intent{}, fmt.Errorf("store payment: %w", err)
	}
	if result != "reused" {
		result = "success"
	}
	return Intent{
		PaymentID:       stored.ID,
		Provider:        providerName,
		PaymentIntentID: resp.ID,
		ClientSecret:    resp.ClientSecret,
		Amount:          pricing.Format(pricing.FromMinorUnits(stored.AmountMinor)),
		AmountMinor:     stored.AmountMinor,
		Currency:        stored.Currency,
	}, nil
}

func (s *Service) prepare(ctx context.Context, t Target) (repo.Payment, IntentRequest, error) {
	company := s.CompanyName
	if company == "" {
		company = "MapleFresh Services"
	}
	if t.BookingID != "" {
		id, _ := uuid.Parse(t.BookingID)
		b, err := s.Store.GetBooking(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return repo.Payment{}, IntentRequest{}, ErrBookingNotFound
			}
			return repo.Payment{}, IntentRequest{}, fmt.Errorf("load booking: %w", err)
		}
		if b.Status == repo.BookingStatusCancelled || b.Status == repo.BookingStatusCompleted {
			return repo.Payment{}, IntentRequest{}, ErrNotPayable
		}
		amount := pricing.ToMinorUnits(b.Total)
		email := b.Customer.Email
		rec := repo.Payment{
			BookingID:     uuid.NullUUID{UUID: b.ID, Valid: true},
			QuoteID:       b.QuoteID,
			AmountMinor:   amount,
			Currency:      b.Currency,
			CustomerEmail: &email,
		}
		req := IntentRequest{
			AmountMinor:  amount,
			Currency:     b.Currency,
			Description:  fmt.Sprintf("%s - Booking %s", company, shortID(b.ID)),
			ReceiptEmail: email,
			Metadata: map[string]string{
				"bookingId":     b.ID.String(),
				"customerId":    b.CustomerID.String(),
				"customerEmail": email,
				"services":      strings.Join(b.Services, ", "),
			},
			IdempotencyKey: fmt.Sprintf("booking-%s-%d", b.ID, amount),
		}
		return rec, req, nil
	}

	id, _ := uuid.Parse(t.QuoteID)
	q, err := s.Store.GetQuote(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Payment{}, IntentRequest{}, ErrQuoteNotFound
		}
		return repo.Payment{}, IntentRequest{}, fmt.Errorf("load quote: %w", err)
	}
	if q.Status == repo.QuoteStatusExpired ||
		((q.Status == repo.QuoteStatusDraft || q.Status == repo.QuoteStatusSent) && !s.now().Before(q.ExpiresAt)) {
		return repo.Payment{}, IntentRequest{}, ErrQuoteExpired
	}
	amount := pricing.ToMinorUnits(q.Total)
	email := t.CustomerEmail
	rec := repo.Payment{
		QuoteID:       uuid.NullUUID{UUID: q.ID, Valid: true},
		AmountMinor:   amount,
		Currency:      q.Currency,
		CustomerEmail: &email,
	}
	req := IntentRequest{
		AmountMinor:  amount,
		Currency:     q.Currency,
		Description:  fmt.Sprintf("%s - Quote %s", company, shortID(q.ID)),
		ReceiptEmail: email,
		Metadata: map[string]string{
			"quoteId":       q.ID.String(),
			"customerEmail": email,
			"services":      strings.Join(q.Services, ", "),
			"propertyType":  q.PropertyType,
		},
		IdempotencyKey: fmt.Sprintf("quote-%s-%s-%d", q.ID, email, amount),
	}
	return rec, req, nil
}

func shortID(id uuid.UUID) string {
	s := id.String()
	return s[len(s)-8:]
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
