package notify

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/events"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

// Notification types accepted by the manual trigger.
const (
	TypeBookingConfirmation = "booking_confirmation"
	TypeQuoteNotification   = "quote_notification"
	TypeStatusUpdate        = "status_update"
	TypeAdminAlert          = "admin_alert"
)

// Settings describes how notifications are delivered.
type Settings struct {
	EmailEnabled bool     `json:"emailEnabled"`
	Async        bool     `json:"async"`
	From         string   `json:"from"`
	AdminAlerts  bool     `json:"adminAlerts"`
	Topics       []string `json:"topics"`
}

// Request is the manual notification trigger payload.
type Request struct {
	Type          string `json:"type" validate:"required,oneof=booking_confirmation quote_notification status_update admin_alert"`
	BookingID     string `json:"bookingId" validate:"required_unless=Type quote_notification,omitempty,uuid"`
	QuoteID       string `json:"quoteId" validate:"required_if=Type quote_notification,omitempty,uuid"`
	CustomerEmail string `json:"customerEmail" validate:"required_if=Type quote_notification,omitempty,email"`
	OldStatus     string `json:"oldStatus" validate:"required_if=Type status_update,omitempty,oneof=pending confirmed in_progress completed cancelled"`
}

// Handler exposes the manual notification endpoints.
type Handler struct {
	Email    *EmailNotifier
	Settings Settings
}

// Send renders and delivers the requested notification synchronously.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Email == nil || h.Email.Composer == nil || h.Email.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOTIFY_NOT_CONFIGURED", "notifications unavailable", nil)
		return
	}
	if h.Email.Mail == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "EMAIL_DISABLED", "email delivery is not configured", nil)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	req.Type = strings.TrimSpace(req.Type)
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	req.OldStatus = strings.TrimSpace(req.OldStatus)
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return
	}

	messages, err := h.compose(r, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sent := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if err := h.Email.Mail.Send(msg.To, msg.Subject, msg.HTML); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("template", msg.Template).Msg("manual notification failed")
			common.JSONError(w, http.StatusBadGateway, "EMAIL_DELIVERY_FAILED", "failed to send notification", map[string]any{"sent": sent})
			return
		}
		sent = append(sent, msg)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"sent": sent}})
}

// GetSettings reports the notification configuration.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings := Settings{Topics: events.DefaultTopics()}
	if h != nil {
		settings = h.Settings
		if len(settings.Topics) == 0 {
			settings.Topics = events.DefaultTopics()
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": settings})
}

func (h *Handler) compose(r *http.Request, req Request) ([]Message, error) {
	ctx := r.Context()
	c := h.Email.Composer
	if req.Type == TypeQuoteNotification {
		q, err := h.Email.Store.GetQuote(ctx, uuid.MustParse(req.QuoteID))
		if err != nil {
			return nil, err
		}
		msg, err := c.QuoteReady(req.CustomerEmail, QuoteViewFrom(q))
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	}

	row, err := h.Email.Store.GetBooking(ctx, uuid.MustParse(req.BookingID))
	if err != nil {
		return nil, err
	}
	b := BookingViewFrom(row)
	switch req.Type {
	case TypeBookingConfirmation:
		return c.BookingCreated(b, h.Email.AdminEmail)
	case TypeAdminAlert:
		if strings.TrimSpace(h.Email.AdminEmail) == "" {
			return nil, errNoAdminInbox
		}
		msg, err := c.AdminAlert(h.Email.AdminEmail, b)
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	default:
		msg, err := c.StatusUpdate(b, req.OldStatus)
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	}
}

var errNoAdminInbox = errors.New("admin email not configured")

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "booking or quote not found", nil)
	case errors.Is(err, errNoAdminInbox):
		common.JSONError(w, http.StatusConflict, "ADMIN_EMAIL_MISSING", err.Error(), nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("notification request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
