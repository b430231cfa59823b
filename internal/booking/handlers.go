package booking

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/pricing"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

// Handler exposes the booking endpoints.
type Handler struct {
	Svc *Service
}

// Submit accepts a booking request.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "BOOKING_NOT_CONFIGURED", "booking service not configured", nil)
		return
	}
	var in SubmitInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.Svc.Submit(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/bookings/"+b.ID.String())
	common.JSON(w, http.StatusCreated, map[string]any{"data": b})
}

// List returns bookings, optionally filtered by status and creation date.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "BOOKING_NOT_CONFIGURED", "booking service not configured", nil)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	f.Limit = common.ParseLimit(r, 0, 0)
	items, err := h.Svc.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Get returns a single booking.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "BOOKING_NOT_CONFIGURED", "booking service not configured", nil)
		return
	}
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	b, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": b})
}

// Update changes the status and scheduling fields of a booking.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "BOOKING_NOT_CONFIGURED", "booking service not configured", nil)
		return
	}
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.Svc.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": b})
}

// Delete removes a booking.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "BOOKING_NOT_CONFIGURED", "booking service not configured", nil)
		return
	}
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export streams matching bookings as an xlsx workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "BOOKING_NOT_CONFIGURED", "booking service not configured", nil)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	doc, err := h.Svc.Export(r.Context(), f, common.ParseLimit(r, 0, 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := fmt.Sprintf("bookings-%s.xlsx", h.Svc.now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func parseFilter(r *http.Request) (ListFilter, error) {
	var f ListFilter
	q := r.URL.Query()
	if raw := strings.ToLower(strings.TrimSpace(q.Get("status"))); raw != "" {
		status := repo.BookingStatus(raw)
		valid := false
		for _, s := range repo.BookingStatuses() {
			if s == status {
				valid = true
				break
			}
		}
		if !valid {
			return f, common.ValidationError(common.FieldError{Field: "status", Rule: "oneof", Message: "unknown booking status"})
		}
		f.Status = &status
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
		days int
	}{{"from", &f.From, 0}, {"to", &f.To, 1}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, common.ValidationError(common.FieldError{Field: p.name, Rule: "datetime", Message: "must match layout " + dateLayout})
		}
		t = t.AddDate(0, 0, p.days)
		*p.dst = &t
	}
	return f, nil
}

func bookingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BOOKING_ID", "booking id must be a uuid", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var mismatch *MismatchError
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "BOOKING_NOT_FOUND", "booking not found", nil)
	case errors.Is(err, ErrQuoteNotFound):
		common.JSONError(w, http.StatusNotFound, "QUOTE_NOT_FOUND", "quote not found", nil)
	case errors.Is(err, ErrQuoteExpired):
		common.JSONError(w, http.StatusConflict, "QUOTE_EXPIRED", "quote has expired", nil)
	case errors.Is(err, ErrQuoteAccepted):
		common.JSONError(w, http.StatusConflict, "QUOTE_ALREADY_BOOKED", "quote already has a booking", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.As(err, &mismatch):
		common.JSONError(w, http.StatusConflict, "QUOTE_MISMATCH", "booking does not match the quoted price", map[string]any{
			"expected":  formatTotals(mismatch.Expected),
			"submitted": formatTotals(mismatch.Submitted),
		})
	case common.IsAppError(err):
		common.WriteError(w, err)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("booking request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func formatTotals(t Totals) map[string]string {
	return map[string]string{
		"subtotal":       pricing.Format(t.Subtotal),
		"bundleDiscount": pricing.Format(t.BundleDiscount),
		"taxes":          pricing.Format(t.Taxes),
		"total":          pricing.Format(t.Total),
	}
}
