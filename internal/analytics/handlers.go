package analytics

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-maplefresh/internal/common"
)

// Handler exposes analytics read endpoints.
type Handler struct {
	Svc *Service
}

// Stats returns the admin dashboard overview. ?fresh=1 bypasses the cache.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	if r.URL.Query().Get("fresh") == "1" {
		if err := h.Svc.Invalidate(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("dashboard cache not cleared")
		}
	}
	d, err := h.Svc.Dashboard(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("dashboard failed")
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "failed to load dashboard", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": d})
}
