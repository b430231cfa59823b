package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/events"
	"github.com/noah-isme/backend-maplefresh/internal/lock"
	"github.com/noah-isme/backend-maplefresh/internal/obs"
	"github.com/noah-isme/backend-maplefresh/internal/pricing"
	"github.com/noah-isme/backend-maplefresh/internal/quote"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

var (
	// ErrNotFound is returned when the booking does not exist.
	ErrNotFound = errors.New("booking not found")
	// ErrQuoteNotFound is returned when the referenced quote does not exist.
	ErrQuoteNotFound = errors.New("quote not found")
	// ErrQuoteExpired is returned when the referenced quote can no longer be booked.
	ErrQuoteExpired = errors.New("quote expired")
	// ErrQuoteAccepted is returned when the referenced quote already has a booking.
	ErrQuoteAccepted = errors.New("quote already booked")
	// ErrInvalidTransition is returned when the status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPriceMismatch is returned when the submitted totals differ from the server price.
	ErrPriceMismatch = errors.New("submitted totals do not match")
)

// Store captures the persistence methods required by the booking service.
type Store interface {
	GetQuote(ctx context.Context, id uuid.UUID) (repo.Quote, error)
	UpdateQuoteStatus(ctx context.Context, id uuid.UUID, status repo.QuoteStatus, now time.Time) (repo.Quote, error)
	AttachQuoteCustomer(ctx context.Context, id, customerID uuid.UUID, now time.Time) error
	GetCustomerByEmail(ctx context.Context, email string) (repo.Customer, error)
	CreateCustomer(ctx context.Context, arg repo.CreateCustomerParams) (repo.Customer, error)
	CreateBooking(ctx context.Context, b repo.Booking) (repo.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (repo.BookingWithCustomer, error)
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (repo.Booking, error)
	ListBookings(ctx context.Context, arg repo.ListBookingsParams) ([]repo.BookingWithCustomer, error)
	UpdateBooking(ctx context.Context, arg repo.UpdateBookingParams) (repo.Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (repo.DomainEvent, error)
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// MismatchError carries both sides of a failed total comparison.
type MismatchError struct {
	Expected  Totals
	Submitted Totals
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: expected total %s, got %s", ErrPriceMismatch,
		pricing.Format(e.Expected.Total), pricing.Format(e.Submitted.Total))
}

func (e *MismatchError) Unwrap() error { return ErrPriceMismatch }

// Booking is the API view of a stored booking.
type Booking struct {
	repo.Booking
	Breakdown pricing.Breakdown `json:"breakdown"`
	Customer  *repo.Customer    `json:"customer,omitempty"`
	Quote     *quote.Quote      `json:"quote,omitempty"`
}

// Service accepts booking requests and moves them through their lifecycle.
type Service struct {
	Store  Store
	Rules  pricing.Rules
	Events Emitter
	Locker Locker
	// Tx runs fn inside a database transaction. When nil, fn runs against Store directly.
	Tx        func(ctx context.Context, fn func(Store) error) error
	ListLimit int
	Now       func() time.Time
}

// Submit validates and prices a booking request, then stores it as pending.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Booking, error) {
	if s == nil || s.Store == nil {
		return Booking{}, errors.New("booking service not configured")
	}
	in.normalize()
	now := s.now()
	if err := in.validate(dayStart(now)); err != nil {
		obs.Inc(obs.BookingsCreated, "invalid")
		return Booking{}, err
	}

	var quoteID uuid.NullUUID
	var quoted repo.Quote
	if in.QuoteID != "" {
		id, _ := uuid.Parse(in.QuoteID)
		row, err := s.checkQuote(ctx, id, now)
		if err != nil {
			obs.Inc(obs.BookingsCreated, "quote_rejected")
			return Booking{}, err
		}
		quoted = row
		quoteID = uuid.NullUUID{UUID: id, Valid: true}
	}

	qin := in.quoteInput()
	req := qin.Request()
	b := pricing.Compute(req, s.Rules)
	if quoteID.Valid && (!sameProperty(quoted.Property, quote.PropertyFromRequest(req)) || !quoted.Total.Equal(b.Total)) {
		obs.Inc(obs.BookingsCreated, "mismatch")
		return Booking{}, &MismatchError{
			Expected: Totals{
				Subtotal:       quoted.Subtotal,
				BundleDiscount: quoted.BundleDiscount,
				Taxes:          quoted.Taxes,
				Total:          quoted.Total,
			},
			Submitted: Totals{Subtotal: b.Subtotal, BundleDiscount: b.BundleDiscount, Taxes: b.Taxes, Total: b.Total},
		}
	}
	if submitted, ok := in.clientTotals(); ok && !submitted.Total.Equal(b.Total) {
		obs.Inc(obs.BookingsCreated, "mismatch")
		return Booking{}, &MismatchError{
			Expected:  Totals{Subtotal: b.Subtotal, BundleDiscount: b.BundleDiscount, Taxes: b.Taxes, Total: b.Total},
			Submitted: submitted,
		}
	}
	encoded, err := json.Marshal(b)
	if err != nil {
		return Booking{}, fmt.Errorf("encode breakdown: %w", err)
	}
	preferred, _ := time.Parse(dateLayout, in.PreferredDate)

	row := repo.Booking{
		ID:            uuid.New(),
		QuoteID:       quoteID,
		Property:      quote.PropertyFromRequest(req),
		Address:       in.Address,
		City:          in.City,
		PostalCode:    in.PostalCode,
		PreferredDate: preferred,
		PreferredTime: in.PreferredTime,
		Pricing: repo.Pricing{
			Breakdown:      encoded,
			Subtotal:       b.Subtotal,
			BundleDiscount: b.BundleDiscount,
			Taxes:          b.Taxes,
			Total:          b.Total,
			Currency:       b.Currency,
		},
		Status:    repo.BookingStatusPending,
		Priority:  repo.PriorityNormal,
		CreatedAt: now,
	}
	if in.SpecialRequests != "" {
		special := in.SpecialRequests
		row.SpecialRequests = &special
	}

	var customer repo.Customer
	err = s.withCustomerLock(ctx, in.Email, func(ctx context.Context) error {
		return s.inTx(ctx, func(st Store) error {
			c, err := findOrCreateCustomer(ctx, st, in, now)
			if err != nil {
				return err
			}
			customer = c
			row.CustomerID = c.ID
			if quoteID.Valid {
				current, err := st.GetQuote(ctx, quoteID.UUID)
				if err != nil {
					return fmt.Errorf("reload quote: %w", err)
				}
				if current.Status == repo.QuoteStatusAccepted {
					return ErrQuoteAccepted
				}
			}
			if row, err = st.CreateBooking(ctx, row); err != nil {
				return fmt.Errorf("store booking: %w", err)
			}
			if quoteID.Valid {
				if _, err := st.UpdateQuoteStatus(ctx, quoteID.UUID, repo.QuoteStatusAccepted, now); err != nil {
					return fmt.Errorf("accept quote: %w", err)
				}
				if err := st.AttachQuoteCustomer(ctx, quoteID.UUID, c.ID, now); err != nil {
					return fmt.Errorf("attach quote customer: %w", err)
				}
			}
			return nil
		})
	})
	if err != nil {
		obs.Inc(obs.BookingsCreated, "error")
		return Booking{}, err
	}
	obs.Inc(obs.BookingsCreated, "ok")

	out := Booking{Booking: row, Breakdown: b, Customer: &customer}
	s.emit(ctx, events.TopicBookingCreated, out, "")
	return out, nil
}

// Get loads a booking with its customer and, when present, its quote.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Booking, error) {
	if s == nil || s.Store == nil {
		return Booking{}, errors.New("booking service not configured")
	}
	row, err := s.Store.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Booking{}, ErrNotFound
		}
		return Booking{}, fmt.Errorf("load booking: %w", err)
	}
	out, err := view(row)
	if err != nil {
		return Booking{}, err
	}
	if row.QuoteID.Valid {
		qrow, err := s.Store.GetQuote(ctx, row.QuoteID.UUID)
		switch {
		case err == nil:
			q, err := quote.FromModel(qrow)
			if err != nil {
				return Booking{}, err
			}
			out.Quote = &q
		case errors.Is(err, repo.ErrNotFound):
		default:
			return Booking{}, fmt.Errorf("load booking quote: %w", err)
		}
	}
	return out, nil
}

// List returns bookings newest first, at most ListLimit unless the filter asks for fewer.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Booking, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("booking service not configured")
	}
	max := s.ListLimit
	if max <= 0 {
		max = 20
	}
	limit := f.Limit
	if limit <= 0 || limit > max {
		limit = max
	}
	return s.list(ctx, f, limit)
}

// Export returns up to limit bookings matching f for spreadsheet export.
func (s *Service) Export(ctx context.Context, f ListFilter, limit int) ([]byte, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("booking service not configured")
	}
	if limit <= 0 || limit > 5000 {
		limit = 5000
	}
	items, err := s.list(ctx, f, limit)
	if err != nil {
		return nil, err
	}
	return ExportXLSX(items)
}

func (s *Service) list(ctx context.Context, f ListFilter, limit int) ([]Booking, error) {
	rows, err := s.Store.ListBookings(ctx, repo.ListBookingsParams{
		Status: f.Status,
		From:   f.From,
		To:     f.To,
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]Booking, 0, len(rows))
	for _, row := range rows {
		b, err := view(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Update applies an admin status update and the optional scheduling fields.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (Booking, error) {
	if s == nil || s.Store == nil {
		return Booking{}, errors.New("booking service not configured")
	}
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	in.Priority = strings.ToLower(strings.TrimSpace(in.Priority))
	if err := common.ValidateStruct(in); err != nil {
		return Booking{}, err
	}
	params := repo.UpdateBookingParams{
		ID:                id,
		Status:            repo.BookingStatus(in.Status),
		AssignedTo:        in.AssignedTo,
		EstimatedDuration: in.EstimatedDuration,
		ScheduledAt:       in.ScheduledAt,
	}
	if in.Priority != "" {
		p := repo.BookingPriority(in.Priority)
		params.Priority = &p
	}
	old, err := s.apply(ctx, params)
	if err != nil {
		return Booking{}, err
	}
	out, err := s.Get(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if old != out.Status {
		s.emit(ctx, events.TopicBookingStatusChanged, out, old)
	}
	return out, nil
}

// Transition moves a booking to status on behalf of a system actor such as
// a payment webhook. It reports whether the status changed.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, status repo.BookingStatus) (bool, error) {
	if s == nil || s.Store == nil {
		return false, errors.New("booking service not configured")
	}
	old, err := s.apply(ctx, repo.UpdateBookingParams{ID: id, Status: status})
	if err != nil {
		return false, err
	}
	if old == status {
		return false, nil
	}
	if out, err := s.Get(ctx, id); err == nil {
		s.emit(ctx, events.TopicBookingStatusChanged, out, old)
	} else {
		zerolog.Ctx(ctx).Warn().Err(err).Str("booking_id", id.String()).Msg("reload booking after transition")
	}
	return true, nil
}

// apply locks the booking row, checks the transition and writes the update.
// It returns the status the booking had before.
func (s *Service) apply(ctx context.Context, params repo.UpdateBookingParams) (repo.BookingStatus, error) {
	var old repo.BookingStatus
	now := s.now()
	err := s.inTx(ctx, func(st Store) error {
		current, err := st.GetBookingForUpdate(ctx, params.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load booking: %w", err)
		}
		old = current.Status
		if !CanTransition(old, params.Status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, old, params.Status)
		}
		if params.Status == repo.BookingStatusCompleted && current.CompletedAt == nil {
			params.CompletedAt = &now
		}
		params.Now = now
		if _, err := st.UpdateBooking(ctx, params); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if old != params.Status {
		obs.Inc(obs.BookingTransitions, string(old), string(params.Status))
	}
	return old, nil
}

// Delete removes a booking.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.Store == nil {
		return errors.New("booking service not configured")
	}
	if err := s.Store.DeleteBooking(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete booking: %w", err)
	}
	return nil
}

// checkQuote loads a quote that is still open for booking.
func (s *Service) checkQuote(ctx context.Context, id uuid.UUID, now time.Time) (repo.Quote, error) {
	row, err := s.Store.GetQuote(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Quote{}, ErrQuoteNotFound
		}
		return repo.Quote{}, fmt.Errorf("load quote: %w", err)
	}
	switch row.Status {
	case repo.QuoteStatusExpired:
		return repo.Quote{}, ErrQuoteExpired
	case repo.QuoteStatusAccepted:
		return repo.Quote{}, ErrQuoteAccepted
	case repo.QuoteStatusDraft, repo.QuoteStatusSent:
		if !now.Before(row.ExpiresAt) {
			return repo.Quote{}, ErrQuoteExpired
		}
	}
	return row, nil
}

// sameProperty compares two property descriptions, ignoring service order.
func sameProperty(a, b repo.Property) bool {
	as, bs := slices.Clone(a.Services), slices.Clone(b.Services)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs) &&
		strings.EqualFold(a.PropertyType, b.PropertyType) &&
		a.Bedrooms == b.Bedrooms &&
		a.Bathrooms == b.Bathrooms &&
		a.SquareFootage.Equal(b.SquareFootage)
}

func findOrCreateCustomer(ctx context.Context, st Store, in SubmitInput, now time.Time) (repo.Customer, error) {
	c, err := st.GetCustomerByEmail(ctx, in.Email)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return repo.Customer{}, fmt.Errorf("find customer: %w", err)
	}
	c, err = st.CreateCustomer(ctx, repo.CreateCustomerParams{
		ID:        uuid.New(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Now:       now,
	})
	if err != nil {
		return repo.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

func (s *Service) withCustomerLock(ctx context.Context, email string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	err := s.Locker.WithLock(ctx, lock.CustomerKey(email), fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return common.NewAppError("BOOKING_BUSY", "another booking for this customer is in progress", http.StatusConflict, err)
	}
	return err
}

func (s *Service) inTx(ctx context.Context, fn func(Store) error) error {
	if s.Tx == nil {
		return fn(s.Store)
	}
	return s.Tx(ctx, fn)
}

func (s *Service) emit(ctx context.Context, topic string, b Booking, oldStatus repo.BookingStatus) {
	if s.Events == nil {
		return
	}
	payload := events.BookingPayload{
		BookingID:     b.ID.String(),
		Status:        string(b.Status),
		OldStatus:     string(oldStatus),
		Services:      b.Services,
		PreferredDate: b.PreferredDate.Format(dateLayout),
		PreferredTime: b.PreferredTime,
		Address:       strings.Join([]string{b.Address, b.City, b.PostalCode}, ", "),
		Total:         pricing.Format(b.Total),
		Currency:      b.Currency,
	}
	if b.Customer != nil {
		payload.CustomerEmail = b.Customer.Email
		payload.CustomerName = strings.TrimSpace(b.Customer.FirstName + " " + b.Customer.LastName)
	}
	if _, err := s.Events.Emit(ctx, topic, b.ID, payload); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("topic", topic).Str("booking_id", b.ID.String()).Msg("booking event not delivered")
	}
}

func view(row repo.BookingWithCustomer) (Booking, error) {
	var b pricing.Breakdown
	if err := json.Unmarshal(row.Breakdown, &b); err != nil {
		return Booking{}, fmt.Errorf("decode breakdown for booking %s: %w", row.ID, err)
	}
	customer := row.Customer
	return Booking{Booking: row.Booking, Breakdown: b, Customer: &customer}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
