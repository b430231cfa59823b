package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-maplefresh/internal/booking"
	"github.com/noah-isme/backend-maplefresh/internal/events"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

type fakeBookings struct {
	mu     sync.Mutex
	status map[uuid.UUID]repo.BookingStatus
}

func (f *fakeBookings) Transition(_ context.Context, id uuid.UUID, to repo.BookingStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from, ok := f.status[id]
	if !ok {
		return false, booking.ErrNotFound
	}
	if from == to {
		return false, nil
	}
	if !booking.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s to %s", booking.ErrInvalidTransition, from, to)
	}
	f.status[id] = to
	return true, nil
}

type emitted struct {
	topic   string
	payload events.PaymentPayload
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) Emit(_ context.Context, topic string, aggregateID uuid.UUID, payload any) (repo.DomainEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{topic: topic, payload: payload.(events.PaymentPayload)})
	return repo.DomainEvent{ID: uuid.New(), Topic: topic, AggregateID: aggregateID}, nil
}

type webhookFixture struct {
	hook     *Webhook
	store    *memStore
	bookings *fakeBookings
	emitter  *recordingEmitter
	redis    *miniredis.Miniredis
}

func newWebhookFixture(t *testing.T) webhookFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := newMemStore()
	bookings := &fakeBookings{status: map[uuid.UUID]repo.BookingStatus{}}
	emitter := &recordingEmitter{}
	hook := &Webhook{
		Store:     store,
		Provider:  Stripe{WebhookSecret: "whsec_test", Now: func() time.Time { return testNow }},
		Bookings:  bookings,
		Events:    emitter,
		Replay:    rdb,
		ReplayTTL: time.Hour,
		Now:       func() time.Time { return testNow },
	}
	return webhookFixture{hook: hook, store: store, bookings: bookings, emitter: emitter, redis: mr}
}

func (f webhookFixture) seedPayment(bookingID uuid.UUID, ref string) {
	email := "jane@example.com"
	f.store.payments["stripe:"+ref] = repo.Payment{
		ID:            uuid.New(),
		BookingID:     uuid.NullUUID{UUID: bookingID, Valid: true},
		Provider:      "stripe",
		ProviderRef:   ref,
		AmountMinor:   21470,
		Currency:      "CAD",
		CustomerEmail: &email,
		Status:        repo.PaymentStatusPending,
	}
}

func (f webhookFixture) post(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", SignatureHeader("whsec_test", testNow, []byte(body)))
	rr := httptest.NewRecorder()
	f.hook.Handle(rr, req)
	return rr
}

func intentEvent(eventType, ref string, extra string) string {
	return fmt.Sprintf(`{"id":"evt_%s","type":%q,"data":{"object":{"id":%q,"amount":21470,"currency":"cad"%s}}}`,
		ref, eventType, ref, extra)
}

func TestWebhookSucceededConfirmsBooking(t *testing.T) {
	f := newWebhookFixture(t)
	bookingID := uuid.New()
	f.bookings.status[bookingID] = repo.BookingStatusPending
	f.seedPayment(bookingID, "pi_1")

	rr := f.post(intentEvent(EventIntentSucceeded, "pi_1", ""))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.JSONEq(t, `{"data":{"received":true}}`, rr.Body.String())

	p, err := f.store.GetPaymentByProviderRef(t.Context(), "stripe", "pi_1")
	require.NoError(t, err)
	require.Equal(t, repo.PaymentStatusSucceeded, p.Status)
	require.Equal(t, repo.BookingStatusConfirmed, f.bookings.status[bookingID])

	require.Len(t, f.emitter.events, 1)
	ev := f.emitter.events[0]
	require.Equal(t, events.TopicPaymentSucceeded, ev.topic)
	require.Equal(t, "214.70", ev.payload.Amount)
	require.Equal(t, bookingID.String(), ev.payload.BookingID)
	require.Equal(t, "jane@example.com", ev.payload.CustomerEmail)
}

func TestWebhookDuplicateAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	bookingID := uuid.New()
	f.bookings.status[bookingID] = repo.BookingStatusPending
	f.seedPayment(bookingID, "pi_dup")
	body := intentEvent(EventIntentSucceeded, "pi_dup", "")

	require.Equal(t, http.StatusOK, f.post(body).Code)
	rr := f.post(body)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"duplicate":true`)
	require.Len(t, f.emitter.events, 1)
}

func TestWebhookFailedPayment(t *testing.T) {
	f := newWebhookFixture(t)
	bookingID := uuid.New()
	f.bookings.status[bookingID] = repo.BookingStatusPending
	f.seedPayment(bookingID, "pi_fail")

	rr := f.post(intentEvent(EventIntentFailed, "pi_fail", `,"last_payment_error":{"message":"Your card was declined."}`))
	require.Equal(t, http.StatusOK, rr.Code)

	p, _ := f.store.GetPaymentByProviderRef(t.Context(), "stripe", "pi_fail")
	require.Equal(t, repo.PaymentStatusFailed, p.Status)
	require.Equal(t, repo.BookingStatusPending, f.bookings.status[bookingID])
	require.Len(t, f.emitter.events, 1)
	require.Equal(t, events.TopicPaymentFailed, f.emitter.events[0].topic)
	require.Equal(t, "Your card was declined.", f.emitter.events[0].payload.Reason)
}

func TestWebhookInvalidTransitionIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	bookingID := uuid.New()
	f.bookings.status[bookingID] = repo.BookingStatusCancelled
	f.seedPayment(bookingID, "pi_late")

	rr := f.post(intentEvent(EventIntentSucceeded, "pi_late", ""))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, repo.BookingStatusCancelled, f.bookings.status[bookingID])
}

func TestWebhookInvoiceCompletesBooking(t *testing.T) {
	f := newWebhookFixture(t)
	bookingID := uuid.New()
	f.bookings.status[bookingID] = repo.BookingStatusInProgress
	body := fmt.Sprintf(`{"id":"evt_inv","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1","amount_paid":21470,"currency":"cad","metadata":{"bookingId":%q}}}}`, bookingID)

	rr := f.post(body)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, repo.BookingStatusCompleted, f.bookings.status[bookingID])
}

func TestWebhookUnknownIntentUsesMetadata(t *testing.T) {
	f := newWebhookFixture(t)
	bookingID := uuid.New()
	f.bookings.status[bookingID] = repo.BookingStatusPending

	rr := f.post(intentEvent(EventIntentSucceeded, "pi_external", fmt.Sprintf(`,"metadata":{"bookingId":%q,"customerEmail":"sam@example.com"}`, bookingID)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, repo.BookingStatusConfirmed, f.bookings.status[bookingID])
	require.Equal(t, "sam@example.com", f.emitter.events[0].payload.CustomerEmail)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	body := intentEvent(EventIntentSucceeded, "pi_1", "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", SignatureHeader("whsec_wrong", testNow, []byte(body)))
	rr := httptest.NewRecorder()
	f.hook.Handle(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_SIGNATURE")
	require.Empty(t, f.redis.Keys())
}

func TestWebhookUnhandledTypeAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	rr := f.post(`{"id":"evt_x","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, f.emitter.events)
}
