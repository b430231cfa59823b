package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/events"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

type fakeStore struct {
	bookings map[uuid.UUID]repo.BookingWithCustomer
	quotes   map[uuid.UUID]repo.Quote
}

func (f fakeStore) GetBooking(_ context.Context, id uuid.UUID) (repo.BookingWithCustomer, error) {
	b, ok := f.bookings[id]
	if !ok {
		return repo.BookingWithCustomer{}, repo.ErrNotFound
	}
	return b, nil
}

func (f fakeStore) GetQuote(_ context.Context, id uuid.UUID) (repo.Quote, error) {
	q, ok := f.quotes[id]
	if !ok {
		return repo.Quote{}, repo.ErrNotFound
	}
	return q, nil
}

func sampleBooking() repo.BookingWithCustomer {
	requests := "Piano in the den"
	return repo.BookingWithCustomer{
		Booking: repo.Booking{
			ID:              uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7"),
			Property:        repo.Property{Services: []string{"moving", "cleaning"}, PropertyType: "house", Bedrooms: 3, Bathrooms: 2},
			Address:         "1 Main St",
			City:            "Toronto",
			PostalCode:      "M5V 2T6",
			PreferredDate:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			PreferredTime:   "afternoon",
			SpecialRequests: &requests,
			Pricing:         repo.Pricing{Total: decimal.RequireFromString("3001.56"), Currency: "CAD"},
			Status:          repo.BookingStatusConfirmed,
			CreatedAt:       time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		},
		Customer: repo.Customer{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Phone: "4165550123"},
	}
}

func sampleQuote() repo.Quote {
	return repo.Quote{
		ID:       uuid.MustParse("1b4e28ba-2fa1-41d2-883f-0016d3cca427"),
		Property: repo.Property{Services: []string{"moving", "cleaning"}, PropertyType: "house", Bedrooms: 3, Bathrooms: 2, SquareFootage: decimal.NewFromInt(1800)},
		Pricing: repo.Pricing{
			Subtotal:       decimal.RequireFromString("3125.00"),
			BundleDiscount: decimal.RequireFromString("468.75"),
			Taxes:          decimal.RequireFromString("345.31"),
			Total:          decimal.RequireFromString("3001.56"),
			Currency:       "CAD",
		},
		Status:    repo.QuoteStatusSent,
		ExpiresAt: time.Date(2025, 5, 8, 9, 0, 0, 0, time.UTC),
	}
}

func newComposer(t *testing.T) *Composer {
	t.Helper()
	c, err := NewComposer(Company{Name: "MapleFresh", Tagline: "Home & Business Services", Phone: "(519) 123-4567", Email: "info@maplefresh.ca", BaseURL: "https://maplefresh.ca/"})
	require.NoError(t, err)
	return c
}

func newNotifier(t *testing.T) (EmailNotifier, *common.InMemoryEmail) {
	b := sampleBooking()
	q := sampleQuote()
	mail := &common.InMemoryEmail{}
	return EmailNotifier{
		Store:      fakeStore{bookings: map[uuid.UUID]repo.BookingWithCustomer{b.ID: b}, quotes: map[uuid.UUID]repo.Quote{q.ID: q}},
		Composer:   newComposer(t),
		Mail:       mail,
		Enabled:    true,
		AdminEmail: "ops@maplefresh.ca",
	}, mail
}

func event(t *testing.T, topic string, aggregate uuid.UUID, payload any) repo.DomainEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return repo.DomainEvent{ID: uuid.New(), Topic: topic, AggregateID: aggregate, Payload: raw, OccurredAt: time.Now()}
}

func TestComposerBookingConfirmation(t *testing.T) {
	c := newComposer(t)
	msg, err := c.BookingConfirmation(BookingViewFrom(sampleBooking()))
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", msg.To)
	require.Equal(t, "Booking Confirmation - MapleFresh", msg.Subject)
	require.Contains(t, msg.HTML, "Dear Jane Doe")
	require.Contains(t, msg.HTML, "F90AE7")
	require.Contains(t, msg.HTML, "Moving Service, Cleaning Service")
	require.Contains(t, msg.HTML, "1 Main St, Toronto, M5V 2T6")
	require.Contains(t, msg.HTML, "$3001.56 CAD")
	require.Contains(t, msg.HTML, "Piano in the den")
	require.Contains(t, msg.HTML, "Sunday, June 1, 2025")
}

func TestComposerEscapesCustomerInput(t *testing.T) {
	b := sampleBooking()
	evil := `<script>alert(1)</script>`
	b.SpecialRequests = &evil
	msg, err := newComposer(t).BookingConfirmation(BookingViewFrom(b))
	require.NoError(t, err)
	require.NotContains(t, msg.HTML, "<script>")
	require.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestComposerQuoteReadyAndStatus(t *testing.T) {
	c := newComposer(t)
	msg, err := c.QuoteReady("sam@example.com", QuoteViewFrom(sampleQuote()))
	require.NoError(t, err)
	require.Equal(t, "Your Quote is Ready - MapleFresh", msg.Subject)
	require.Contains(t, msg.HTML, "Bundle Discount:</strong> -$468.75")
	require.Contains(t, msg.HTML, "3BR/2BA, 1800 sq ft")
	require.Contains(t, msg.HTML, "May 8, 2025")
	require.Contains(t, msg.HTML, "https://maplefresh.ca/book")

	b := BookingViewFrom(sampleBooking())
	b.Status = string(repo.BookingStatusInProgress)
	msg, err = c.StatusUpdate(b, "confirmed")
	require.NoError(t, err)
	require.Equal(t, "Booking Update: In progress - MapleFresh", msg.Subject)
	require.Contains(t, msg.HTML, "currently in progress")

	_, err = c.PaymentReceipt("", PaymentView{})
	require.Error(t, err)
}

func TestEmailNotifierBookingCreated(t *testing.T) {
	n, mail := newNotifier(t)
	b := sampleBooking()
	require.NoError(t, n.Notify(t.Context(), event(t, events.TopicBookingCreated, b.ID, events.BookingPayload{BookingID: b.ID.String()})))

	sent := mail.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, "jane@example.com", sent[0].To)
	require.Equal(t, "ops@maplefresh.ca", sent[1].To)
	require.Contains(t, sent[1].Subject, "New Booking: Jane Doe")
	require.Contains(t, sent[1].HTML, "https://maplefresh.ca/admin")
}

func TestEmailNotifierTopics(t *testing.T) {
	n, mail := newNotifier(t)
	b := sampleBooking()
	q := sampleQuote()

	require.NoError(t, n.Notify(t.Context(), event(t, events.TopicBookingStatusChanged, b.ID, events.BookingPayload{Status: "confirmed"})))
	require.Empty(t, mail.Sent())

	require.NoError(t, n.Notify(t.Context(), event(t, events.TopicBookingStatusChanged, b.ID, events.BookingPayload{Status: "confirmed", OldStatus: "pending"})))
	require.NoError(t, n.Notify(t.Context(), event(t, events.TopicQuoteSent, q.ID, events.QuotePayload{CustomerEmail: "sam@example.com"})))
	require.NoError(t, n.Notify(t.Context(), event(t, events.TopicQuoteCreated, q.ID, events.QuotePayload{})))
	require.NoError(t, n.Notify(t.Context(), event(t, events.TopicPaymentSucceeded, b.ID, events.PaymentPayload{
		BookingID: b.ID.String(), ProviderRef: "pi_1", CustomerEmail: "jane@example.com", Amount: "3001.56", Currency: "CAD",
	})))
	require.NoError(t, n.Notify(t.Context(), event(t, events.TopicPaymentFailed, b.ID, events.PaymentPayload{CustomerEmail: "jane@example.com"})))

	sent := mail.Sent()
	require.Len(t, sent, 3)
	require.Contains(t, sent[0].Subject, "Booking Update: Confirmed")
	require.Equal(t, "sam@example.com", sent[1].To)
	require.Contains(t, sent[2].HTML, "pi_1")
}

func TestEmailNotifierDisabledAndToggles(t *testing.T) {
	n, mail := newNotifier(t)
	b := sampleBooking()
	ev := event(t, events.TopicBookingCreated, b.ID, events.BookingPayload{})

	n.TopicToggles = map[string]bool{events.TopicBookingCreated: false}
	require.NoError(t, n.Notify(t.Context(), ev))
	n.TopicToggles = nil
	n.Enabled = false
	require.NoError(t, n.Notify(t.Context(), ev))
	require.Empty(t, mail.Sent())

	n.Enabled = true
	err := n.Notify(t.Context(), event(t, events.TopicBookingCreated, uuid.New(), events.BookingPayload{}))
	require.ErrorIs(t, err, repo.ErrNotFound)
}

type flakySender struct {
	fails int
	sent  []string
}

func (f *flakySender) Send(to, subject, html string) error {
	if f.fails > 0 {
		f.fails--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, to)
	return nil
}

func TestEmailNotifierReplayGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	n, _ := newNotifier(t)
	sender := &flakySender{}
	n.Mail = sender
	n.Replay = RedisReplayProtector{Client: rdb}
	b := sampleBooking()
	ev := event(t, events.TopicBookingCreated, b.ID, events.BookingPayload{})

	require.NoError(t, n.Notify(t.Context(), ev))
	require.NoError(t, n.Notify(t.Context(), ev))
	require.Equal(t, []string{"jane@example.com", "ops@maplefresh.ca"}, sender.sent)

	sender.sent = nil
	sender.fails = 1
	retry := event(t, events.TopicBookingCreated, b.ID, events.BookingPayload{})
	require.Error(t, n.Notify(t.Context(), retry))
	require.Equal(t, []string{"ops@maplefresh.ca"}, sender.sent)
	require.NoError(t, n.Notify(t.Context(), retry))
	require.Equal(t, []string{"ops@maplefresh.ca", "jane@example.com"}, sender.sent)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestTaskNotifierRoundTrip(t *testing.T) {
	q := &fakeEnqueuer{}
	notifier := TaskNotifier{Client: q, Queue: "notifications", MaxRetry: 5}
	b := sampleBooking()
	ev := event(t, events.TopicBookingCreated, b.ID, events.BookingPayload{BookingID: b.ID.String()})

	require.NoError(t, notifier.Notify(t.Context(), ev))
	require.Len(t, q.tasks, 1)
	require.Equal(t, TaskEmail, q.tasks[0].Type())
	require.Len(t, q.opts[0], 3)

	n, mail := newNotifier(t)
	require.NoError(t, TaskHandler{Email: n}.ProcessTask(t.Context(), q.tasks[0]))
	require.Len(t, mail.Sent(), 2)

	err := TaskHandler{Email: n}.ProcessTask(t.Context(), asynq.NewTask(TaskEmail, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	q.err = asynq.ErrTaskIDConflict
	require.NoError(t, notifier.Notify(t.Context(), ev))
	q.err = errors.New("redis down")
	require.Error(t, notifier.Notify(t.Context(), ev))
}

func TestHandlerSend(t *testing.T) {
	n, mail := newNotifier(t)
	h := &Handler{Email: &n, Settings: Settings{EmailEnabled: true, From: "bookings@maplefresh.ca", AdminAlerts: true}}
	r := chi.NewRouter()
	r.Post("/api/v1/notifications", h.Send)
	r.Get("/api/v1/notifications", h.GetSettings)
	b := sampleBooking()
	q := sampleQuote()

	post := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(body)))
		return rr
	}

	rr := post(`{"type":"booking_confirmation","bookingId":"` + b.ID.String() + `"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, mail.Sent(), 2)

	rr = post(`{"type":"quote_notification","quoteId":"` + q.ID.String() + `","customerEmail":"Sam@Example.com"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "sam@example.com", mail.Sent()[2].To)

	rr = post(`{"type":"status_update","bookingId":"` + b.ID.String() + `","oldStatus":"pending"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data struct {
			Sent []Message `json:"sent"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Sent, 1)
	require.Equal(t, tmplStatusUpdate, resp.Data.Sent[0].Template)

	rr = post(`{"type":"status_update","bookingId":"` + b.ID.String() + `"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = post(`{"type":"quote_notification","quoteId":"` + q.ID.String() + `"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = post(`{"type":"sms"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = post(`{"type":"booking_confirmation","bookingId":"` + uuid.NewString() + `"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var settings struct {
		Data Settings `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &settings))
	require.True(t, settings.Data.EmailEnabled)
	require.Equal(t, events.DefaultTopics(), settings.Data.Topics)
}
