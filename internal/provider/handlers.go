package provider

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/common"
)

// Handler exposes the provider endpoints.
type Handler struct {
	Svc *Service
}

// Create registers a provider.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PROVIDER_NOT_CONFIGURED", "provider service not configured", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/providers/"+p.ID.String())
	common.JSON(w, http.StatusCreated, map[string]any{"data": p})
}

// List returns providers, optionally those offering a given service.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PROVIDER_NOT_CONFIGURED", "provider service not configured", nil)
		return
	}
	q := r.URL.Query()
	activeOnly, _ := strconv.ParseBool(q.Get("active"))
	items, err := h.Svc.List(r.Context(), ListFilter{
		Service:    q.Get("service"),
		ActiveOnly: activeOnly,
		Limit:      common.ParseLimit(r, 0, 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Get returns a single provider.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PROVIDER_NOT_CONFIGURED", "provider service not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_PROVIDER_ID", "provider id must be a uuid", nil)
		return
	}
	p, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_FOUND", "provider not found", nil)
	case errors.Is(err, ErrDuplicateEmail):
		common.JSONError(w, http.StatusConflict, "PROVIDER_EXISTS", "a provider with this email already exists", nil)
	case common.IsAppError(err):
		common.WriteError(w, err)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("provider request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
