package booking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

func newRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	h := &Handler{Svc: svc}
	r.Route("/api/v1/bookings", func(b chi.Router) {
		b.Post("/", h.Submit)
		b.Get("/", h.List)
		b.Get("/{id}", h.Get)
		b.Patch("/{id}", h.Update)
		b.Delete("/{id}", h.Delete)
	})
	r.Get("/api/v1/admin/bookings/export", h.Export)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

const bookingBody = `{
  "firstName": "Jane", "lastName": "Doe", "email": "jane@example.com", "phone": "4165550123",
  "services": ["moving", "cleaning"], "propertyType": "house", "bedrooms": 3, "bathrooms": 2, "squareFootage": 1800,
  "address": "1 Main St", "city": "Toronto", "postalCode": "M5V 2T6",
  "preferredDate": "2025-06-01", "preferredTime": "afternoon", "specialRequests": "Piano in the den"%s
}`

func bookingJSON(extra string) string {
	return string(bytes.Replace([]byte(bookingBody), []byte("%s"), []byte(extra), 1))
}

func TestHandlerSubmitAndGet(t *testing.T) {
	svc, _, _, _ := newService(t)
	router := newRouter(svc)

	rr := do(t, router, http.MethodPost, "/api/v1/bookings", bookingJSON(""))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Data Booking `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, repo.BookingStatusPending, created.Data.Status)
	require.Equal(t, "3001.56", created.Data.Breakdown.Total.StringFixed(2))
	require.Equal(t, "Piano in the den", *created.Data.SpecialRequests)
	require.Equal(t, "/api/v1/bookings/"+created.Data.ID.String(), rr.Header().Get("Location"))

	rr = do(t, router, http.MethodGet, "/api/v1/bookings/"+created.Data.ID.String(), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got struct {
		Data Booking `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "jane@example.com", got.Data.Customer.Email)
	require.Len(t, got.Data.Breakdown.Items, 2)
}

func TestHandlerSubmitMismatch(t *testing.T) {
	svc, _, _, _ := newService(t)
	rr := do(t, newRouter(svc), http.MethodPost, "/api/v1/bookings", bookingJSON(`, "total": "2999.00"`))
	require.Equal(t, http.StatusConflict, rr.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "QUOTE_MISMATCH", env.Error.Code)
	expected := env.Error.Details["expected"].(map[string]any)
	require.Equal(t, "3001.56", expected["total"])
}

func TestHandlerSubmitBookedQuote(t *testing.T) {
	svc, store, _, c := newService(t)
	id := seedQuote(store, repo.QuoteStatusAccepted, c.now.Add(time.Hour))
	rr := do(t, newRouter(svc), http.MethodPost, "/api/v1/bookings", bookingJSON(`, "quoteId": "`+id.String()+`"`))
	require.Equal(t, http.StatusConflict, rr.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "QUOTE_ALREADY_BOOKED", env.Error.Code)
}

func TestHandlerSubmitExpiredQuote(t *testing.T) {
	svc, store, _, c := newService(t)
	id := seedQuote(store, repo.QuoteStatusExpired, c.now.Add(-24*time.Hour))
	rr := do(t, newRouter(svc), http.MethodPost, "/api/v1/bookings", bookingJSON(`, "quoteId": "`+id.String()+`"`))
	require.Equal(t, http.StatusConflict, rr.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "QUOTE_EXPIRED", env.Error.Code)
}

func TestHandlerPatchAndDelete(t *testing.T) {
	svc, _, _, _ := newService(t)
	router := newRouter(svc)
	b, err := svc.Submit(t.Context(), condoBooking())
	require.NoError(t, err)
	path := "/api/v1/bookings/" + b.ID.String()

	rr := do(t, router, http.MethodPatch, path, `{"status":"in_progress","assignedTo":"Crew B","scheduledAt":"2025-05-10T13:00:00Z"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated struct {
		Data Booking `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	require.Equal(t, repo.BookingStatusInProgress, updated.Data.Status)
	require.NotNil(t, updated.Data.ScheduledAt)

	rr = do(t, router, http.MethodPatch, path, `{"status":"pending"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	rr = do(t, router, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, router, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerListAndExport(t *testing.T) {
	svc, _, _, _ := newService(t)
	router := newRouter(svc)
	_, err := svc.Submit(t.Context(), condoBooking())
	require.NoError(t, err)

	rr := do(t, router, http.MethodGet, "/api/v1/bookings?status=pending&from=2025-05-01&to=2025-05-01", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Data []Booking `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)

	rr = do(t, router, http.MethodGet, "/api/v1/bookings?status=archived", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, router, http.MethodGet, "/api/v1/bookings?from=yesterday", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/v1/admin/bookings/export", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Disposition"), "bookings-20250501.xlsx")
	require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))
}

func TestHandlerErrors(t *testing.T) {
	svc, _, _, _ := newService(t)
	router := newRouter(svc)

	rr := do(t, router, http.MethodGet, "/api/v1/bookings/nope", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodPost, "/api/v1/bookings", `{"firstName":"Jane","coupon":"FREE"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, newRouter(nil), http.MethodGet, "/api/v1/bookings", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
