package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-maplefresh/internal/events"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

type stubStore struct {
	last repo.DomainEvent
	err  error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, ev repo.DomainEvent) error {
	s.last = ev
	return s.err
}

type captureNotifier struct {
	events []repo.DomainEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event repo.DomainEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier, nil},
		Now:       func() time.Time { return fixed },
	}

	aggregate := uuid.New()
	event, err := bus.Emit(context.Background(), events.TopicBookingCreated, aggregate, events.BookingPayload{
		BookingID: aggregate.String(),
		Status:    "pending",
		Services:  []string{"moving"},
		Total:     "214.70",
		Currency:  "CAD",
	})
	require.NoError(t, err)
	require.Equal(t, events.TopicBookingCreated, store.last.Topic)
	require.Equal(t, aggregate, store.last.AggregateID)
	require.Equal(t, fixed, store.last.OccurredAt)
	require.NotEqual(t, uuid.Nil, event.ID)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "214.70", decoded["total"])
	require.NotContains(t, decoded, "oldStatus")
}

func TestEmitValidatesInput(t *testing.T) {
	var nilBus *events.Bus
	_, err := nilBus.Emit(context.Background(), events.TopicQuoteCreated, uuid.New(), nil)
	require.Error(t, err)

	bus := events.Bus{Store: &stubStore{}}
	_, err = bus.Emit(context.Background(), "  ", uuid.New(), nil)
	require.EqualError(t, err, "events: topic is required")

	_, err = bus.Emit(context.Background(), events.TopicQuoteCreated, uuid.Nil, nil)
	require.EqualError(t, err, "events: aggregate id is required")

	_, err = bus.Emit(context.Background(), events.TopicQuoteCreated, uuid.New(), "{not json")
	require.ErrorContains(t, err, "encode payload")
}

func TestEmitEmptyPayloadDefaultsToObject(t *testing.T) {
	store := &stubStore{}
	bus := events.Bus{Store: store}
	_, err := bus.Emit(context.Background(), events.TopicQuoteSent, uuid.New(), json.RawMessage(nil))
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(store.last.Payload))
}

func TestEmitStoreFailureSkipsNotifiers(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{err: errors.New("db down")}, Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), events.TopicPaymentFailed, uuid.New(), nil)
	require.ErrorContains(t, err, "persist event")
	require.Empty(t, notifier.events)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("smtp down")}
	healthy := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{failing, healthy}}
	ev, err := bus.Emit(context.Background(), events.TopicPaymentSucceeded, uuid.New(), map[string]string{"paymentId": "p1"})
	require.ErrorContains(t, err, "smtp down")
	require.NotEqual(t, uuid.Nil, ev.ID)
	require.Len(t, healthy.events, 1)
}

func TestEmitRejectsUnknownTopic(t *testing.T) {
	store := &stubStore{}
	bus := events.Bus{Store: store}
	_, err := bus.Emit(context.Background(), "invoice.created", uuid.New(), nil)
	require.EqualError(t, err, `events: unknown topic "invoice.created"`)
	require.Empty(t, store.last.Topic)
}
