package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/obs"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

// EventStore persists domain events.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, ev repo.DomainEvent) error
}

// Notifier reacts to a persisted event, such as sending an email or
// enqueueing a task.
type Notifier interface {
	Notify(ctx context.Context, event repo.DomainEvent) error
}

// Bus records quote, booking and payment events in the domain_events table
// and then hands each one to every notifier.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit persists the event before fan-out, so a notifier never sees an event
// that was not stored. Notifier failures are joined into the returned error
// alongside the stored event.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (repo.DomainEvent, error) {
	ev, err := b.build(topic, aggregateID, payload)
	if err != nil {
		return repo.DomainEvent{}, err
	}
	if err := b.Store.InsertDomainEvent(ctx, ev); err != nil {
		obs.Inc(obs.EventsEmitted, ev.Topic, "store_error")
		return repo.DomainEvent{}, fmt.Errorf("events: persist event: %w", err)
	}

	var errs []error
	for i, n := range b.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("topic", ev.Topic).
				Str("event_id", ev.ID.String()).
				Int("notifier", i).
				Msg("event notifier failed")
			errs = append(errs, fmt.Errorf("events: notifier: %w", err))
		}
	}
	result := "ok"
	if len(errs) > 0 {
		result = "notify_error"
	}
	obs.Inc(obs.EventsEmitted, ev.Topic, result)
	return ev, errors.Join(errs...)
}

func (b *Bus) build(topic string, aggregateID uuid.UUID, payload any) (repo.DomainEvent, error) {
	switch {
	case b == nil || b.Store == nil:
		return repo.DomainEvent{}, errors.New("events: store not configured")
	case strings.TrimSpace(topic) == "":
		return repo.DomainEvent{}, errors.New("events: topic is required")
	case aggregateID == uuid.Nil:
		return repo.DomainEvent{}, errors.New("events: aggregate id is required")
	}
	topic = strings.TrimSpace(topic)
	if !slices.Contains(DefaultTopics(), topic) {
		return repo.DomainEvent{}, fmt.Errorf("events: unknown topic %q", topic)
	}
	body, err := marshalPayload(payload)
	if err != nil {
		return repo.DomainEvent{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return repo.DomainEvent{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     body,
		OccurredAt:  now().UTC(),
	}, nil
}

// marshalPayload accepts a struct, a map or pre-encoded JSON. Empty input
// is stored as {}.
func marshalPayload(payload any) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(strings.TrimSpace(v))
	default:
		return json.Marshal(v)
	}
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid json")
	}
	return slices.Clone(raw), nil
}
