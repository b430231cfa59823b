package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-maplefresh/internal/events"
	"github.com/noah-isme/backend-maplefresh/internal/obs"
	"github.com/noah-isme/backend-maplefresh/internal/pricing"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

var (
	// ErrNotFound is returned when the quote does not exist.
	ErrNotFound = errors.New("quote not found")
	// ErrExpired is returned when a quote is used after its expiry.
	ErrExpired = errors.New("quote expired")
)

// Store captures the persistence methods required by the quote service.
type Store interface {
	CreateQuote(ctx context.Context, q repo.Quote) (repo.Quote, error)
	GetQuote(ctx context.Context, id uuid.UUID) (repo.Quote, error)
	ListQuotes(ctx context.Context, limit int32) ([]repo.Quote, error)
	UpdateQuoteStatus(ctx context.Context, id uuid.UUID, status repo.QuoteStatus, now time.Time) (repo.Quote, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (repo.DomainEvent, error)
}

// Quote is the API view of a stored quote.
type Quote struct {
	ID            uuid.UUID             `json:"id"`
	Status        repo.QuoteStatus      `json:"status"`
	Services      []pricing.ServiceKind `json:"services"`
	PropertyType  pricing.PropertyType  `json:"propertyType"`
	Bedrooms      int                   `json:"bedrooms"`
	Bathrooms     int                   `json:"bathrooms"`
	SquareFootage decimal.Decimal       `json:"squareFootage"`
	Breakdown     pricing.Breakdown     `json:"breakdown"`
	ExpiresAt     time.Time             `json:"expiresAt"`
	CreatedAt     time.Time             `json:"createdAt"`
}

// Expired reports whether the quote can no longer be booked or paid.
func (q Quote) Expired() bool {
	return q.Status == repo.QuoteStatusExpired
}

// Service prices, stores and shares quotes.
type Service struct {
	Store     Store
	Rules     pricing.Rules
	Events    Emitter
	TTL       time.Duration
	ListLimit int
	Now       func() time.Time
}

// Preview prices the input without persisting anything.
func (s *Service) Preview(in Input) (pricing.Breakdown, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return pricing.Breakdown{}, err
	}
	b := pricing.Compute(in.Request(), s.Rules)
	observe("preview", b)
	return b, nil
}

// Create prices and stores a draft quote that expires after TTL.
func (s *Service) Create(ctx context.Context, in Input) (Quote, error) {
	if s == nil || s.Store == nil {
		return Quote{}, errors.New("quote service not configured")
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Quote{}, err
	}
	req := in.Request()
	b := pricing.Compute(req, s.Rules)
	encoded, err := json.Marshal(b)
	if err != nil {
		return Quote{}, fmt.Errorf("encode breakdown: %w", err)
	}
	now := s.now()
	row, err := s.Store.CreateQuote(ctx, repo.Quote{
		ID:       uuid.New(),
		Property: PropertyFromRequest(req),
		Pricing: repo.Pricing{
			Breakdown:      encoded,
			Subtotal:       b.Subtotal,
			BundleDiscount: b.BundleDiscount,
			Taxes:          b.Taxes,
			Total:          b.Total,
			Currency:       b.Currency,
		},
		Status:    repo.QuoteStatusDraft,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	})
	if err != nil {
		return Quote{}, fmt.Errorf("store quote: %w", err)
	}
	observe("quote", b)
	q, err := s.view(row)
	if err != nil {
		return Quote{}, err
	}
	s.emit(ctx, events.TopicQuoteCreated, q, "")
	return q, nil
}

// Get loads a quote by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Quote, error) {
	if s == nil || s.Store == nil {
		return Quote{}, errors.New("quote service not configured")
	}
	row, err := s.Store.GetQuote(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Quote{}, ErrNotFound
		}
		return Quote{}, fmt.Errorf("load quote: %w", err)
	}
	return s.view(row)
}

// List returns the newest quotes, at most ListLimit.
func (s *Service) List(ctx context.Context, limit int) ([]Quote, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("quote service not configured")
	}
	max := s.ListLimit
	if max <= 0 {
		max = 50
	}
	if limit <= 0 || limit > max {
		limit = max
	}
	rows, err := s.Store.ListQuotes(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	out := make([]Quote, 0, len(rows))
	for _, row := range rows {
		q, err := s.view(row)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// Notify emails the quote to the customer and marks it sent.
func (s *Service) Notify(ctx context.Context, id uuid.UUID, email string) (Quote, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if q.Expired() {
		return Quote{}, ErrExpired
	}
	if q.Status == repo.QuoteStatusDraft {
		row, err := s.Store.UpdateQuoteStatus(ctx, id, repo.QuoteStatusSent, s.now())
		if err != nil {
			return Quote{}, fmt.Errorf("mark quote sent: %w", err)
		}
		if q, err = s.view(row); err != nil {
			return Quote{}, err
		}
	}
	s.emit(ctx, events.TopicQuoteSent, q, strings.TrimSpace(email))
	return q, nil
}

// MarkAccepted records that the quote was turned into a booking.
func (s *Service) MarkAccepted(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Store.UpdateQuoteStatus(ctx, id, repo.QuoteStatusAccepted, s.now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("mark quote accepted: %w", err)
	}
	return nil
}

func (s *Service) view(row repo.Quote) (Quote, error) {
	q, err := FromModel(row)
	if err != nil {
		return Quote{}, err
	}
	if (q.Status == repo.QuoteStatusDraft || q.Status == repo.QuoteStatusSent) && !s.now().Before(q.ExpiresAt) {
		q.Status = repo.QuoteStatusExpired
	}
	return q, nil
}

// FromModel decodes a stored quote into its API view.
func FromModel(row repo.Quote) (Quote, error) {
	var b pricing.Breakdown
	if err := json.Unmarshal(row.Breakdown, &b); err != nil {
		return Quote{}, fmt.Errorf("decode breakdown for quote %s: %w", row.ID, err)
	}
	services := make([]pricing.ServiceKind, 0, len(row.Services))
	for _, s := range row.Services {
		services = append(services, pricing.ServiceKind(s))
	}
	return Quote{
		ID:            row.ID,
		Status:        row.Status,
		Services:      services,
		PropertyType:  pricing.PropertyType(row.PropertyType),
		Bedrooms:      int(row.Bedrooms),
		Bathrooms:     int(row.Bathrooms),
		SquareFootage: row.SquareFootage,
		Breakdown:     b,
		ExpiresAt:     row.ExpiresAt,
		CreatedAt:     row.CreatedAt,
	}, nil
}

// PropertyFromRequest maps an engine request onto the stored property columns.
func PropertyFromRequest(req pricing.Request) repo.Property {
	services := make([]string, 0, len(req.Services))
	for _, k := range req.Services {
		services = append(services, string(k))
	}
	return repo.Property{
		Services:      services,
		PropertyType:  string(req.PropertyType),
		Bedrooms:      int32(req.Bedrooms),
		Bathrooms:     int32(req.Bathrooms),
		SquareFootage: req.SquareFootage,
	}
}

func (s *Service) emit(ctx context.Context, topic string, q Quote, email string) {
	if s.Events == nil {
		return
	}
	services := make([]string, 0, len(q.Services))
	for _, k := range q.Services {
		services = append(services, string(k))
	}
	payload := events.QuotePayload{
		QuoteID:       q.ID.String(),
		CustomerEmail: email,
		Services:      services,
		Total:         pricing.Format(q.Breakdown.Total),
		Currency:      q.Breakdown.Currency,
		ExpiresAt:     q.ExpiresAt.Format(time.RFC3339),
	}
	if _, err := s.Events.Emit(ctx, topic, q.ID, payload); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("topic", topic).Str("quote_id", q.ID.String()).Msg("quote event not delivered")
	}
}

func observe(source string, b pricing.Breakdown) {
	kinds := make([]string, 0, len(b.Items))
	for _, k := range b.Kinds() {
		kinds = append(kinds, string(k))
	}
	total, _ := b.Total.Float64()
	obs.ObserveQuote(source, strings.Join(kinds, "+"), total)
}

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
