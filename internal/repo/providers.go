package repo

import (
	"context"

	"github.com/google/uuid"
)

const providerColumns = `id, first_name, last_name, email, phone, services, service_areas, working_hours,
rating, total_jobs, is_active, is_verified, background_check, insurance, created_at, updated_at`

func scanProvider(row interface{ Scan(...any) error }) (Provider, error) {
	var p Provider
	err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Services, &p.ServiceAreas, &p.WorkingHours,
		&p.Rating, &p.TotalJobs, &p.IsActive, &p.IsVerified, &p.BackgroundCheck, &p.Insurance, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, mapErr(err)
}

const createProvider = `INSERT INTO service_providers (id, first_name, last_name, email, phone, services, service_areas,
working_hours, rating, total_jobs, is_active, is_verified, background_check, insurance, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
RETURNING ` + providerColumns

func (q *Queries) CreateProvider(ctx context.Context, p Provider) (Provider, error) {
	return scanProvider(q.db.QueryRow(ctx, createProvider,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.Services, p.ServiceAreas,
		p.WorkingHours, p.Rating, p.TotalJobs, p.IsActive, p.IsVerified, p.BackgroundCheck, p.Insurance, p.CreatedAt,
	))
}

type ListProvidersParams struct {
	Service    *string
	ActiveOnly bool
	Limit      int32
}

const listProviders = `SELECT ` + providerColumns + ` FROM service_providers
WHERE ($1::text IS NULL OR $1 = ANY(services))
  AND (NOT $2 OR is_active)
ORDER BY created_at DESC, id
LIMIT $3`

func (q *Queries) ListProviders(ctx context.Context, arg ListProvidersParams) ([]Provider, error) {
	rows, err := q.db.Query(ctx, listProviders, arg.Service, arg.ActiveOnly, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Provider, 0, arg.Limit)
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const getProvider = `SELECT ` + providerColumns + ` FROM service_providers WHERE id = $1`

func (q *Queries) GetProvider(ctx context.Context, id uuid.UUID) (Provider, error) {
	return scanProvider(q.db.QueryRow(ctx, getProvider, id))
}

// ProviderCounts summarises the provider roster.
type ProviderCounts struct {
	Active   int64
	Verified int64
}

const countProviders = `SELECT
    count(*) FILTER (WHERE is_active),
    count(*) FILTER (WHERE is_active AND is_verified AND background_check AND insurance)
FROM service_providers`

func (q *Queries) CountProviders(ctx context.Context) (ProviderCounts, error) {
	var c ProviderCounts
	err := q.db.QueryRow(ctx, countProviders).Scan(&c.Active, &c.Verified)
	return c, err
}
