package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
	"github.com/noah-isme/backend-maplefresh/internal/resilience"
)

type memStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]repo.BookingWithCustomer
	quotes   map[uuid.UUID]repo.Quote
	payments map[string]repo.Payment
}

func newMemStore() *memStore {
	return &memStore{
		bookings: map[uuid.UUID]repo.BookingWithCustomer{},
		quotes:   map[uuid.UUID]repo.Quote{},
		payments: map[string]repo.Payment{},
	}
}

func (m *memStore) GetBooking(_ context.Context, id uuid.UUID) (repo.BookingWithCustomer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return repo.BookingWithCustomer{}, repo.ErrNotFound
	}
	return b, nil
}

func (m *memStore) GetQuote(_ context.Context, id uuid.UUID) (repo.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return repo.Quote{}, repo.ErrNotFound
	}
	return q, nil
}

func (m *memStore) CreatePayment(_ context.Context, p repo.Payment) (repo.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.Provider + ":" + p.ProviderRef
	if _, ok := m.payments[key]; ok {
		return repo.Payment{}, repo.ErrConflict
	}
	p.UpdatedAt = p.CreatedAt
	m.payments[key] = p
	return p, nil
}

func (m *memStore) GetPaymentByProviderRef(_ context.Context, provider, ref string) (repo.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[provider+":"+ref]
	if !ok {
		return repo.Payment{}, repo.ErrNotFound
	}
	return p, nil
}

func (m *memStore) UpdatePaymentStatus(_ context.Context, provider, ref string, status repo.PaymentStatus, payload []byte, now time.Time) (repo.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + ":" + ref
	p, ok := m.payments[key]
	if !ok {
		return repo.Payment{}, repo.ErrNotFound
	}
	p.Status = status
	p.Payload = payload
	p.UpdatedAt = now
	m.payments[key] = p
	return p, nil
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []IntentRequest
	byKey    map[string]string
	err      error
}

func (f *fakeProvider) Name() string { return "stripe" }

func (f *fakeProvider) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return IntentResponse{}, f.err
	}
	f.requests = append(f.requests, req)
	if f.byKey == nil {
		f.byKey = map[string]string{}
	}
	id, ok := f.byKey[req.IdempotencyKey]
	if !ok {
		id = "pi_" + uuid.NewString()[:8]
		f.byKey[req.IdempotencyKey] = id
	}
	return IntentResponse{Provider: "stripe", ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}, nil
}

func (f *fakeProvider) VerifyWebhook(*http.Request, []byte) (WebhookEvent, error) {
	return WebhookEvent{}, ErrInvalidSignature
}

var testNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func seedBooking(store *memStore, status repo.BookingStatus) repo.BookingWithCustomer {
	b := repo.BookingWithCustomer{
		Booking: repo.Booking{
			ID:         uuid.New(),
			CustomerID: uuid.New(),
			Property:   repo.Property{Services: []string{"cleaning"}, PropertyType: "condo", Bedrooms: 2, Bathrooms: 2},
			Pricing:    repo.Pricing{Total: decimal.RequireFromString("214.70"), Currency: "CAD"},
			Status:     status,
		},
		Customer: repo.Customer{Email: "jane@example.com"},
	}
	store.bookings[b.ID] = b
	return b
}

func seedQuote(store *memStore, status repo.QuoteStatus, expires time.Time) repo.Quote {
	q := repo.Quote{
		ID:        uuid.New(),
		Property:  repo.Property{Services: []string{"handyman"}, PropertyType: "office", Bedrooms: 1, Bathrooms: 1},
		Pricing:   repo.Pricing{Total: decimal.RequireFromString("111.87"), Currency: "CAD"},
		Status:    status,
		ExpiresAt: expires,
	}
	store.quotes[q.ID] = q
	return q
}

func newPaymentService() (*Service, *memStore, *fakeProvider) {
	store := newMemStore()
	provider := &fakeProvider{}
	return &Service{Store: store, Provider: provider, Now: func() time.Time { return testNow }}, store, provider
}

func TestCreateIntentForBooking(t *testing.T) {
	svc, store, provider := newPaymentService()
	b := seedBooking(store, repo.BookingStatusPending)

	intent, err := svc.CreateIntent(t.Context(), Target{BookingID: b.ID.String()})
	require.NoError(t, err)
	require.Equal(t, int64(21470), intent.AmountMinor)
	require.Equal(t, "214.70", intent.Amount)
	require.Equal(t, "CAD", intent.Currency)
	require.NotEmpty(t, intent.ClientSecret)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	require.Equal(t, "jane@example.com", req.ReceiptEmail)
	require.Equal(t, b.ID.String(), req.Metadata["bookingId"])
	require.Equal(t, "booking-"+b.ID.String()+"-21470", req.IdempotencyKey)
	require.True(t, strings.HasPrefix(req.Description, "MapleFresh Services - Booking "))

	stored, err := store.GetPaymentByProviderRef(t.Context(), "stripe", intent.PaymentIntentID)
	require.NoError(t, err)
	require.Equal(t, repo.PaymentStatusPending, stored.Status)
	require.True(t, stored.BookingID.Valid)
}

func TestCreateIntentReusesProviderIntent(t *testing.T) {
	svc, store, _ := newPaymentService()
	b := seedBooking(store, repo.BookingStatusConfirmed)

	first, err := svc.CreateIntent(t.Context(), Target{BookingID: b.ID.String()})
	require.NoError(t, err)
	second, err := svc.CreateIntent(t.Context(), Target{BookingID: b.ID.String()})
	require.NoError(t, err)
	require.Equal(t, first.PaymentID, second.PaymentID)
	require.Equal(t, first.PaymentIntentID, second.PaymentIntentID)
}

func TestCreateIntentForQuote(t *testing.T) {
	svc, store, provider := newPaymentService()
	q := seedQuote(store, repo.QuoteStatusSent, testNow.Add(time.Hour))

	intent, err := svc.CreateIntent(t.Context(), Target{QuoteID: q.ID.String(), CustomerEmail: " Sam@Example.com "})
	require.NoError(t, err)
	require.Equal(t, int64(11187), intent.AmountMinor)
	require.Equal(t, "sam@example.com", provider.requests[0].ReceiptEmail)
	require.Equal(t, "office", provider.requests[0].Metadata["propertyType"])
}

func TestCreateIntentRejections(t *testing.T) {
	svc, store, _ := newPaymentService()
	cancelled := seedBooking(store, repo.BookingStatusCancelled)
	expired := seedQuote(store, repo.QuoteStatusSent, testNow)

	_, err := svc.CreateIntent(t.Context(), Target{BookingID: cancelled.ID.String()})
	require.ErrorIs(t, err, ErrNotPayable)

	_, err = svc.CreateIntent(t.Context(), Target{BookingID: uuid.NewString()})
	require.ErrorIs(t, err, ErrBookingNotFound)

	_, err = svc.CreateIntent(t.Context(), Target{QuoteID: expired.ID.String(), CustomerEmail: "a@b.co"})
	require.ErrorIs(t, err, ErrQuoteExpired)

	_, err = svc.CreateIntent(t.Context(), Target{QuoteID: uuid.NewString(), CustomerEmail: "a@b.co"})
	require.ErrorIs(t, err, ErrQuoteNotFound)

	_, err = svc.CreateIntent(t.Context(), Target{})
	require.NotEmpty(t, common.FieldErrors(err))

	_, err = svc.CreateIntent(t.Context(), Target{QuoteID: uuid.NewString()})
	require.NotEmpty(t, common.FieldErrors(err))

	disabled := &Service{Store: store}
	_, err = disabled.CreateIntent(t.Context(), Target{BookingID: uuid.NewString()})
	require.ErrorIs(t, err, ErrDisabled)
}

func TestIntentHandler(t *testing.T) {
	svc, store, provider := newPaymentService()
	b := seedBooking(store, repo.BookingStatusPending)
	r := chi.NewRouter()
	h := &Handler{Svc: svc}
	r.Post("/api/v1/payments/intent", h.Intent)
	r.Post("/api/v1/payments/webhook", h.HandleWebhook)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(body))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := post(`{"bookingId":"` + b.ID.String() + `"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp struct {
		Data Intent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "214.70", resp.Data.Amount)

	rr = post(`{"bookingId":"` + uuid.NewString() + `"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = post(`{"bookingId":"` + b.ID.String() + `","amount":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	provider.err = resilience.ErrOpenCircuit
	rr = post(`{"bookingId":"` + b.ID.String() + `"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYMENT_PROVIDER_UNAVAILABLE")

	provider.err = &APIError{StatusCode: http.StatusBadRequest, Message: "bad currency"}
	rr = post(`{"bookingId":"` + b.ID.String() + `"}`)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader("{}")))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
