package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

type memStore struct {
	mu    sync.Mutex
	items []repo.Provider
}

func (m *memStore) CreateProvider(_ context.Context, p repo.Provider) (repo.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Email == p.Email {
			return repo.Provider{}, errors.Join(repo.ErrConflict, errors.New("duplicate key"))
		}
	}
	p.UpdatedAt = p.CreatedAt
	m.items = append([]repo.Provider{p}, m.items...)
	return p, nil
}

func (m *memStore) ListProviders(_ context.Context, arg repo.ListProvidersParams) ([]repo.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repo.Provider
	for _, p := range m.items {
		if arg.Service != nil && !slices.Contains(p.Services, *arg.Service) {
			continue
		}
		if arg.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
		if len(out) == int(arg.Limit) {
			break
		}
	}
	return out, nil
}

func (m *memStore) GetProvider(_ context.Context, id uuid.UUID) (repo.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.ID == id {
			return p, nil
		}
	}
	return repo.Provider{}, repo.ErrNotFound
}

func newService() (*Service, *memStore) {
	store := &memStore{}
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return &Service{Store: store, Now: func() time.Time { return now }}, store
}

func cleaner() Input {
	return Input{
		FirstName:    "Priya",
		LastName:     "Shah",
		Email:        " Priya@Example.com ",
		Phone:        "6475550199",
		Services:     []string{"Cleaning", "handyman"},
		ServiceAreas: []string{"Toronto", " Mississauga "},
		WorkingHours: "Mon-Fri 8-18",
		IsVerified:   true,
	}
}

func TestCreateDefaults(t *testing.T) {
	svc, _ := newService()
	p, err := svc.Create(context.Background(), cleaner())
	require.NoError(t, err)
	require.True(t, p.IsActive)
	require.True(t, p.Rating.IsZero())
	require.Zero(t, p.TotalJobs)
	require.Equal(t, "priya@example.com", p.Email)
	require.Equal(t, []string{"cleaning", "handyman"}, p.Services)
	require.Equal(t, []string{"Toronto", "Mississauga"}, p.ServiceAreas)
	require.Equal(t, "Mon-Fri 8-18", *p.WorkingHours)
}

func TestCreateValidation(t *testing.T) {
	svc, store := newService()
	in := cleaner()
	in.Services = []string{"gardening"}
	in.ServiceAreas = nil
	in.Phone = "555"
	_, err := svc.Create(context.Background(), in)

	fields := map[string]string{}
	for _, f := range common.FieldErrors(err) {
		fields[f.Field] = f.Rule
	}
	require.Equal(t, "oneof", fields["services[0]"])
	require.Equal(t, "required", fields["serviceAreas"])
	require.Equal(t, "min", fields["phone"])
	require.Empty(t, store.items)
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Create(context.Background(), cleaner())
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), cleaner())
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestListFilters(t *testing.T) {
	svc, store := newService()
	_, err := svc.Create(context.Background(), cleaner())
	require.NoError(t, err)
	mover := cleaner()
	mover.Email = "movers@example.com"
	mover.Services = []string{"moving"}
	_, err = svc.Create(context.Background(), mover)
	require.NoError(t, err)
	store.items[0].IsActive = false

	all, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	moving, err := svc.List(context.Background(), ListFilter{Service: "Moving"})
	require.NoError(t, err)
	require.Len(t, moving, 1)

	active, err := svc.List(context.Background(), ListFilter{Service: "moving", ActiveOnly: true})
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestHandlers(t *testing.T) {
	svc, _ := newService()
	r := chi.NewRouter()
	h := &Handler{Svc: svc}
	r.Post("/api/v1/providers", h.Create)
	r.Get("/api/v1/providers", h.List)
	r.Get("/api/v1/providers/{id}", h.Get)

	body, _ := json.Marshal(cleaner())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/providers", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Data repo.Provider `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/providers", bytes.NewReader(body)))
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/providers?service=cleaning&active=true", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Data []repo.Provider `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/providers/"+created.Data.ID.String(), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/providers/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
