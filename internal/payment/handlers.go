package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/resilience"
)

// Handler exposes HTTP endpoints for payment intents and provider webhooks.
type Handler struct {
	Svc     *Service
	Webhook *Webhook
}

// Intent opens a payment intent for a booking or quote.
func (h *Handler) Intent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var t Target
	if err := common.DecodeJSON(r, &t); err != nil {
		common.WriteError(w, err)
		return
	}
	intent, err := h.Svc.CreateIntent(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": intent})
}

// HandleWebhook forwards provider callbacks to the webhook processor.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Webhook == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	h.Webhook.Handle(w, r)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *APIError
	var statusErr *resilience.StatusError
	switch {
	case errors.Is(err, ErrBookingNotFound):
		common.JSONError(w, http.StatusNotFound, "BOOKING_NOT_FOUND", "booking not found", nil)
	case errors.Is(err, ErrQuoteNotFound):
		common.JSONError(w, http.StatusNotFound, "QUOTE_NOT_FOUND", "quote not found", nil)
	case errors.Is(err, ErrQuoteExpired):
		common.JSONError(w, http.StatusConflict, "QUOTE_EXPIRED", "quote has expired", nil)
	case errors.Is(err, ErrNotPayable):
		common.JSONError(w, http.StatusConflict, "BOOKING_NOT_PAYABLE", "booking cannot be paid in its current status", nil)
	case errors.Is(err, ErrDisabled):
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENTS_DISABLED", "payments are not configured", nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_PROVIDER_UNAVAILABLE", "payment provider temporarily unavailable", nil)
	case errors.Is(err, context.DeadlineExceeded):
		common.JSONError(w, http.StatusGatewayTimeout, "PAYMENT_PROVIDER_TIMEOUT", "payment provider timed out", nil)
	case errors.As(err, &apiErr):
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("payment provider rejected intent")
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", apiErr.Message, nil)
	case errors.As(err, &statusErr):
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("payment provider unavailable")
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", "payment provider error", nil)
	case common.IsAppError(err):
		common.WriteError(w, err)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("payment request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
