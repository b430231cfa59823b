package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-maplefresh/internal/pricing"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

// Querier defines the database access required for the dashboard.
type Querier interface {
	CountBookingsByStatus(ctx context.Context) ([]repo.BookingStatusCount, error)
	SumBookingRevenue(ctx context.Context) (decimal.Decimal, error)
	CountProviders(ctx context.Context) (repo.ProviderCounts, error)
	CountOpenQuotes(ctx context.Context, now time.Time) (int64, error)
}

// Dashboard is the admin overview.
type Dashboard struct {
	TotalBookings     int64                        `json:"totalBookings"`
	BookingsByStatus  map[repo.BookingStatus]int64 `json:"bookingsByStatus"`
	PendingBookings   int64                        `json:"pendingBookings"`
	Revenue           string                       `json:"revenue"`
	Currency          string                       `json:"currency"`
	ActiveProviders   int64                        `json:"activeProviders"`
	VerifiedProviders int64                        `json:"verifiedProviders"`
	OpenQuotes        int64                        `json:"openQuotes"`
	GeneratedAt       time.Time                    `json:"generatedAt"`
}

// Service provides cached access to the dashboard aggregates.
type Service struct {
	Q        Querier
	R        redis.Cmdable
	TTL      time.Duration
	Currency string
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Dashboard returns booking, revenue, provider and quote counts.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	if s == nil || s.Q == nil {
		return Dashboard{}, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "dashboard")
	var cached Dashboard
	if s.load(ctx, key, &cached) {
		return cached, nil
	}

	counts, err := s.Q.CountBookingsByStatus(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("count bookings: %w", err)
	}
	revenue, err := s.Q.SumBookingRevenue(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("sum revenue: %w", err)
	}
	providers, err := s.Q.CountProviders(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("count providers: %w", err)
	}
	now := s.now()
	open, err := s.Q.CountOpenQuotes(ctx, now)
	if err != nil {
		return Dashboard{}, fmt.Errorf("count quotes: %w", err)
	}

	d := Dashboard{
		BookingsByStatus:  make(map[repo.BookingStatus]int64, len(repo.BookingStatuses())),
		Revenue:           pricing.Format(revenue),
		Currency:          s.Currency,
		ActiveProviders:   providers.Active,
		VerifiedProviders: providers.Verified,
		OpenQuotes:        open,
		GeneratedAt:       now,
	}
	if d.Currency == "" {
		d.Currency = "CAD"
	}
	for _, status := range repo.BookingStatuses() {
		d.BookingsByStatus[status] = 0
	}
	for _, c := range counts {
		d.BookingsByStatus[c.Status] = c.Count
		d.TotalBookings += c.Count
	}
	d.PendingBookings = d.BookingsByStatus[repo.BookingStatusPending]
	s.store(ctx, key, d)
	return d, nil
}

// Invalidate drops the cached dashboard so the next read recomputes it.
func (s *Service) Invalidate(ctx context.Context) error {
	if s == nil || s.R == nil {
		return nil
	}
	return s.R.Del(ctx, cacheKey("an", "dashboard")).Err()
}

// Notify implements events.Notifier so domain events refresh the dashboard.
func (s *Service) Notify(ctx context.Context, _ repo.DomainEvent) error {
	return s.Invalidate(ctx)
}

func (s *Service) load(ctx context.Context, key string, dst any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
