package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/booking"
	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/events"
	"github.com/noah-isme/backend-maplefresh/internal/obs"
	"github.com/noah-isme/backend-maplefresh/internal/pricing"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

// Stripe event types acted upon.
const (
	EventIntentSucceeded  = "payment_intent.succeeded"
	EventIntentFailed     = "payment_intent.payment_failed"
	EventInvoiceSucceeded = "invoice.payment_succeeded"
)

const maxWebhookBytes = 1 << 20

// Bookings moves bookings through their lifecycle on behalf of the webhook.
type Bookings interface {
	Transition(ctx context.Context, id uuid.UUID, status repo.BookingStatus) (bool, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (repo.DomainEvent, error)
}

// Webhook handles payment provider callbacks, including signature verification and settlement.
type Webhook struct {
	Store     Store
	Provider  Provider
	Bookings  Bookings
	Events    Emitter
	Replay    redis.Cmdable
	ReplayTTL time.Duration
	Now       func() time.Time
}

// Handle processes webhook callbacks for the configured payment provider.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Provider == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerName := h.Provider.Name()
	result := "error"
	defer func() { obs.Inc(obs.PaymentWebhookTotal, providerName, result) }()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		result = "invalid"
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	event, err := h.Provider.VerifyWebhook(r, body)
	if err != nil {
		result = "invalid"
		if errors.Is(err, ErrInvalidSignature) {
			common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", "webhook payload rejected", nil)
		return
	}

	ctx := r.Context()
	logger := zerolog.Ctx(ctx).With().Str("provider", providerName).Str("event_id", event.ID).Str("event_type", event.Type).Logger()
	replayKey := ""
	if h.Replay != nil {
		ttl := h.ReplayTTL
		if ttl <= 0 {
			ttl = 72 * time.Hour
		}
		replayKey = fmt.Sprintf("wh:%s:%s", providerName, common.Sha256Hex(string(body)))
		fresh, err := h.Replay.SetNX(ctx, replayKey, "1", ttl).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay store unavailable", nil)
			return
		}
		if !fresh {
			result = "duplicate"
			logger.Info().Msg("duplicate webhook acknowledged")
			common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"received": true, "duplicate": true}})
			return
		}
	}

	if err := h.apply(ctx, logger, event); err != nil {
		if replayKey != "" {
			_ = h.Replay.Del(context.WithoutCancel(ctx), replayKey).Err()
		}
		logger.Error().Err(err).Msg("webhook processing failed")
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_FAILED", "webhook processing failed", nil)
		return
	}
	result = "ok"
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"received": true}})
}

func (h Webhook) apply(ctx context.Context, logger zerolog.Logger, event WebhookEvent) error {
	switch event.Type {
	case EventIntentSucceeded:
		p, err := h.settle(ctx, logger, event, repo.PaymentStatusSucceeded)
		if err != nil {
			return err
		}
		if id, ok := bookingRef(event, p); ok {
			if err := h.transition(ctx, logger, id, repo.BookingStatusConfirmed); err != nil {
				return err
			}
		}
		h.emit(ctx, logger, events.TopicPaymentSucceeded, event, p)
	case EventIntentFailed:
		p, err := h.settle(ctx, logger, event, repo.PaymentStatusFailed)
		if err != nil {
			return err
		}
		h.emit(ctx, logger, events.TopicPaymentFailed, event, p)
	case EventInvoiceSucceeded:
		if id, ok := bookingRef(event, repo.Payment{}); ok {
			return h.transition(ctx, logger, id, repo.BookingStatusCompleted)
		}
		logger.Info().Msg("invoice without booking reference")
	default:
		logger.Info().Msg("unhandled webhook event")
	}
	return nil
}

// settle records the provider outcome on the payment row. Intents created
// outside this service have no row and are only logged.
func (h Webhook) settle(ctx context.Context, logger zerolog.Logger, event WebhookEvent, status repo.PaymentStatus) (repo.Payment, error) {
	p, err := h.Store.UpdatePaymentStatus(ctx, h.Provider.Name(), event.Object.ID, status, event.Payload, h.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			logger.Warn().Str("intent_id", event.Object.ID).Msg("no payment record for intent")
			return repo.Payment{
				ProviderRef: event.Object.ID,
				AmountMinor: event.Object.AmountMinor,
				Currency:    event.Object.Currency,
				Status:      status,
			}, nil
		}
		return repo.Payment{}, fmt.Errorf("update payment status: %w", err)
	}
	if event.Object.AmountMinor > 0 && event.Object.AmountMinor != p.AmountMinor {
		logger.Warn().Int64("expected", p.AmountMinor).Int64("received", event.Object.AmountMinor).Msg("provider amount mismatch")
	}
	return p, nil
}

func (h Webhook) transition(ctx context.Context, logger zerolog.Logger, id uuid.UUID, status repo.BookingStatus) error {
	if h.Bookings == nil {
		return nil
	}
	changed, err := h.Bookings.Transition(ctx, id, status)
	switch {
	case err == nil:
		logger.Info().Str("booking_id", id.String()).Str("status", string(status)).Bool("changed", changed).Msg("booking updated from webhook")
		return nil
	case errors.Is(err, booking.ErrInvalidTransition):
		logger.Info().Err(err).Str("booking_id", id.String()).Msg("webhook transition ignored")
		return nil
	case errors.Is(err, booking.ErrNotFound):
		logger.Warn().Str("booking_id", id.String()).Msg("webhook references unknown booking")
		return nil
	default:
		return err
	}
}

func (h Webhook) emit(ctx context.Context, logger zerolog.Logger, topic string, event WebhookEvent, p repo.Payment) {
	if h.Events == nil {
		return
	}
	payload := events.PaymentPayload{
		Provider:    h.Provider.Name(),
		ProviderRef: event.Object.ID,
		Amount:      pricing.Format(pricing.FromMinorUnits(p.AmountMinor)),
		Currency:    p.Currency,
		Reason:      event.Object.FailureMessage,
	}
	aggregate := p.ID
	if p.ID != uuid.Nil {
		payload.PaymentID = p.ID.String()
	}
	if p.CustomerEmail != nil {
		payload.CustomerEmail = *p.CustomerEmail
	} else {
		payload.CustomerEmail = event.Object.Metadata["customerEmail"]
	}
	if id, ok := bookingRef(event, p); ok {
		payload.BookingID = id.String()
		aggregate = id
	}
	if p.QuoteID.Valid {
		payload.QuoteID = p.QuoteID.UUID.String()
	} else {
		payload.QuoteID = event.Object.Metadata["quoteId"]
	}
	if aggregate == uuid.Nil {
		if q, err := uuid.Parse(payload.QuoteID); err == nil {
			aggregate = q
		}
	}
	if _, err := h.Events.Emit(ctx, topic, aggregate, payload); err != nil {
		logger.Warn().Err(err).Str("topic", topic).Msg("payment event not delivered")
	}
}

// bookingRef prefers the stored payment's booking, then the event metadata.
func bookingRef(event WebhookEvent, p repo.Payment) (uuid.UUID, bool) {
	if p.BookingID.Valid {
		return p.BookingID.UUID, true
	}
	id, err := uuid.Parse(event.Object.Metadata["bookingId"])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h Webhook) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

var _ Bookings = (*booking.Service)(nil)
