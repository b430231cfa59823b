package quote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/common"
)

// Handler exposes the quote endpoints.
type Handler struct {
	Svc         *Service
	CompanyName string
}

type sendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Preview prices a selection without storing it.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "QUOTE_NOT_CONFIGURED", "quote service not configured", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.Svc.Preview(in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": b})
}

// Create stores a draft quote.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "QUOTE_NOT_CONFIGURED", "quote service not configured", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	q, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/quotes/"+q.ID.String())
	common.JSON(w, http.StatusCreated, map[string]any{"data": q})
}

// List returns the newest quotes.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "QUOTE_NOT_CONFIGURED", "quote service not configured", nil)
		return
	}
	quotes, err := h.Svc.List(r.Context(), common.ParseLimit(r, 0, 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quotes})
}

// Get returns a single quote.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "QUOTE_NOT_CONFIGURED", "quote service not configured", nil)
		return
	}
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	q, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}

// PDF streams the printable quote.
func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "QUOTE_NOT_CONFIGURED", "quote service not configured", nil)
		return
	}
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	q, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := RenderPDF(q, h.CompanyName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "quote-"+q.ID.String()[:8]+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// Send emails the quote to the given address.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "QUOTE_NOT_CONFIGURED", "quote service not configured", nil)
		return
	}
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return
	}
	q, err := h.Svc.Notify(r.Context(), id, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": q})
}

func quoteID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_QUOTE_ID", "quote id must be a uuid", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "QUOTE_NOT_FOUND", "quote not found", nil)
	case errors.Is(err, ErrExpired):
		common.JSONError(w, http.StatusConflict, "QUOTE_EXPIRED", "quote has expired", nil)
	case common.IsAppError(err):
		common.WriteError(w, err)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("quote request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
