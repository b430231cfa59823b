package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/events"
	"github.com/noah-isme/backend-maplefresh/internal/obs"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

const channelEmail = "email"

// Store loads the records an email is rendered from.
type Store interface {
	GetBooking(ctx context.Context, id uuid.UUID) (repo.BookingWithCustomer, error)
	GetQuote(ctx context.Context, id uuid.UUID) (repo.Quote, error)
}

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Store        Store
	Composer     *Composer
	Mail         common.EmailSender
	Enabled      bool
	AdminEmail   string
	TopicToggles map[string]bool
	Replay       ReplayProtector
	ReplayTTL    time.Duration
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(ctx context.Context, event repo.DomainEvent) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	messages, err := n.Messages(ctx, event)
	if err != nil {
		obs.Inc(obs.NotificationsTotal, event.Topic, channelEmail, "error")
		return err
	}
	var joined error
	for _, msg := range messages {
		if err := n.deliver(ctx, event, msg); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

// Messages renders the emails an event produces. Topics without a customer
// facing email yield none.
func (n EmailNotifier) Messages(ctx context.Context, event repo.DomainEvent) ([]Message, error) {
	if n.Composer == nil {
		return nil, errors.New("email notify: composer not configured")
	}
	switch event.Topic {
	case events.TopicBookingCreated:
		b, err := n.booking(ctx, event.AggregateID)
		if err != nil {
			return nil, err
		}
		return n.Composer.BookingCreated(b, n.AdminEmail)
	case events.TopicBookingStatusChanged:
		var p events.BookingPayload
		if err := decode(event, &p); err != nil {
			return nil, err
		}
		if p.OldStatus == "" {
			return nil, nil
		}
		b, err := n.booking(ctx, event.AggregateID)
		if err != nil {
			return nil, err
		}
		msg, err := n.Composer.StatusUpdate(b, p.OldStatus)
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	case events.TopicQuoteSent:
		var p events.QuotePayload
		if err := decode(event, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.CustomerEmail) == "" {
			return nil, nil
		}
		if n.Store == nil {
			return nil, errors.New("email notify: store not configured")
		}
		q, err := n.Store.GetQuote(ctx, event.AggregateID)
		if err != nil {
			return nil, fmt.Errorf("email notify: load quote: %w", err)
		}
		msg, err := n.Composer.QuoteReady(p.CustomerEmail, QuoteViewFrom(q))
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	case events.TopicPaymentSucceeded:
		var p events.PaymentPayload
		if err := decode(event, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.CustomerEmail) == "" {
			return nil, nil
		}
		ref := p.BookingID
		if ref == "" {
			ref = p.QuoteID
		}
		view := PaymentView{ProviderRef: p.ProviderRef, Amount: p.Amount, Currency: p.Currency}
		if ref != "" {
			view.Reference = reference(ref)
		}
		msg, err := n.Composer.PaymentReceipt(p.CustomerEmail, view)
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	default:
		return nil, nil
	}
}

// BookingCreated renders the customer confirmation and, when an admin inbox
// is configured, the new booking alert.
func (c *Composer) BookingCreated(b BookingView, adminEmail string) ([]Message, error) {
	confirmation, err := c.BookingConfirmation(b)
	if err != nil {
		return nil, err
	}
	out := []Message{confirmation}
	if strings.TrimSpace(adminEmail) != "" {
		alert, err := c.AdminAlert(adminEmail, b)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, nil
}

func (n EmailNotifier) booking(ctx context.Context, id uuid.UUID) (BookingView, error) {
	if n.Store == nil {
		return BookingView{}, errors.New("email notify: store not configured")
	}
	b, err := n.Store.GetBooking(ctx, id)
	if err != nil {
		return BookingView{}, fmt.Errorf("email notify: load booking: %w", err)
	}
	return BookingViewFrom(b), nil
}

func (n EmailNotifier) deliver(ctx context.Context, event repo.DomainEvent, msg Message) error {
	key := ""
	if n.Replay != nil && event.ID != uuid.Nil {
		ttl := n.ReplayTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		key = fmt.Sprintf("notify:sent:%s:%s", event.ID, common.Sha256Hex(msg.Template+"|"+msg.To))
		fresh, err := n.Replay.Acquire(ctx, key, ttl)
		if err != nil {
			return fmt.Errorf("email notify: replay guard: %w", err)
		}
		if !fresh {
			obs.Inc(obs.NotificationsTotal, event.Topic, channelEmail, "duplicate")
			return nil
		}
	}
	if err := n.Mail.Send(msg.To, msg.Subject, msg.HTML); err != nil {
		if key != "" {
			_ = n.Replay.Release(context.WithoutCancel(ctx), key)
		}
		obs.Inc(obs.NotificationsTotal, event.Topic, channelEmail, "error")
		zerolog.Ctx(ctx).Warn().Err(err).Str("topic", event.Topic).Str("template", msg.Template).Msg("email not sent")
		return fmt.Errorf("email notify: send %s: %w", msg.Template, err)
	}
	obs.Inc(obs.NotificationsTotal, event.Topic, channelEmail, "sent")
	return nil
}

func decode(event repo.DomainEvent, dst any) error {
	if len(event.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(event.Payload, dst); err != nil {
		return fmt.Errorf("email notify: decode payload: %w", err)
	}
	return nil
}

var _ events.Notifier = EmailNotifier{}
