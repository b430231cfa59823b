package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

var (
	// ErrNotFound is returned when the provider does not exist.
	ErrNotFound = errors.New("provider not found")
	// ErrDuplicateEmail is returned when another provider already uses the email.
	ErrDuplicateEmail = errors.New("provider email already registered")
)

// Store captures the persistence methods required by the provider service.
type Store interface {
	CreateProvider(ctx context.Context, p repo.Provider) (repo.Provider, error)
	ListProviders(ctx context.Context, arg repo.ListProvidersParams) ([]repo.Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (repo.Provider, error)
}

// Input is the provider registration form.
type Input struct {
	FirstName       string   `json:"firstName" validate:"required,max=100"`
	LastName        string   `json:"lastName" validate:"required,max=100"`
	Email           string   `json:"email" validate:"required,email,max=254"`
	Phone           string   `json:"phone" validate:"required,min=10,max=30"`
	Services        []string `json:"services" validate:"required,min=1,unique,dive,oneof=moving cleaning handyman"`
	ServiceAreas    []string `json:"serviceAreas" validate:"required,min=1,dive,required,max=100"`
	WorkingHours    string   `json:"workingHours" validate:"max=200"`
	IsVerified      bool     `json:"isVerified"`
	BackgroundCheck bool     `json:"backgroundCheck"`
	Insurance       bool     `json:"insurance"`
}

func (in *Input) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.WorkingHours = strings.TrimSpace(in.WorkingHours)
	for i, s := range in.Services {
		in.Services[i] = strings.ToLower(strings.TrimSpace(s))
	}
	for i, a := range in.ServiceAreas {
		in.ServiceAreas[i] = strings.TrimSpace(a)
	}
}

// Service manages the service provider roster.
type Service struct {
	Store     Store
	ListLimit int
	Now       func() time.Time
}

// Create registers an active provider with no rating and no completed jobs.
func (s *Service) Create(ctx context.Context, in Input) (repo.Provider, error) {
	if s == nil || s.Store == nil {
		return repo.Provider{}, errors.New("provider service not configured")
	}
	in.normalize()
	if err := common.ValidateStruct(in); err != nil {
		return repo.Provider{}, err
	}
	p := repo.Provider{
		ID:              uuid.New(),
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		Phone:           in.Phone,
		Services:        in.Services,
		ServiceAreas:    in.ServiceAreas,
		Rating:          decimal.Zero,
		IsActive:        true,
		IsVerified:      in.IsVerified,
		BackgroundCheck: in.BackgroundCheck,
		Insurance:       in.Insurance,
		CreatedAt:       s.now(),
	}
	if in.WorkingHours != "" {
		hours := in.WorkingHours
		p.WorkingHours = &hours
	}
	created, err := s.Store.CreateProvider(ctx, p)
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return repo.Provider{}, ErrDuplicateEmail
		}
		return repo.Provider{}, fmt.Errorf("store provider: %w", err)
	}
	return created, nil
}

// ListFilter narrows the provider list.
type ListFilter struct {
	Service    string
	ActiveOnly bool
	Limit      int
}

// List returns providers newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]repo.Provider, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("provider service not configured")
	}
	max := s.ListLimit
	if max <= 0 {
		max = 100
	}
	limit := f.Limit
	if limit <= 0 || limit > max {
		limit = max
	}
	params := repo.ListProvidersParams{ActiveOnly: f.ActiveOnly, Limit: int32(limit)}
	if svc := strings.ToLower(strings.TrimSpace(f.Service)); svc != "" {
		params.Service = &svc
	}
	items, err := s.Store.ListProviders(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return items, nil
}

// Get loads a provider by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (repo.Provider, error) {
	if s == nil || s.Store == nil {
		return repo.Provider{}, errors.New("provider service not configured")
	}
	p, err := s.Store.GetProvider(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Provider{}, ErrNotFound
		}
		return repo.Provider{}, fmt.Errorf("load provider: %w", err)
	}
	return p, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
