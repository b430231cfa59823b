package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const quoteColumns = `id, customer_id, services, property_type, bedrooms, bathrooms, square_footage,
breakdown, subtotal, bundle_discount, taxes, total, currency, status, expires_at, created_at, updated_at`

func scanQuote(row interface{ Scan(...any) error }) (Quote, error) {
	var qt Quote
	err := row.Scan(
		&qt.ID, &qt.CustomerID, &qt.Services, &qt.PropertyType, &qt.Bedrooms, &qt.Bathrooms, &qt.SquareFootage,
		&qt.Breakdown, &qt.Subtotal, &qt.BundleDiscount, &qt.Taxes, &qt.Total, &qt.Currency,
		&qt.Status, &qt.ExpiresAt, &qt.CreatedAt, &qt.UpdatedAt,
	)
	return qt, mapErr(err)
}

const createQuote = `INSERT INTO quotes (id, customer_id, services, property_type, bedrooms, bathrooms, square_footage,
breakdown, subtotal, bundle_discount, taxes, total, currency, status, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
RETURNING ` + quoteColumns

// CreateQuote inserts q using its ID and CreatedAt.
func (q *Queries) CreateQuote(ctx context.Context, qt Quote) (Quote, error) {
	return scanQuote(q.db.QueryRow(ctx, createQuote,
		qt.ID, qt.CustomerID, qt.Services, qt.PropertyType, qt.Bedrooms, qt.Bathrooms, qt.SquareFootage,
		qt.Breakdown, qt.Subtotal, qt.BundleDiscount, qt.Taxes, qt.Total, qt.Currency,
		qt.Status, qt.ExpiresAt, qt.CreatedAt,
	))
}

const getQuote = `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`

func (q *Queries) GetQuote(ctx context.Context, id uuid.UUID) (Quote, error) {
	return scanQuote(q.db.QueryRow(ctx, getQuote, id))
}

const listQuotes = `SELECT ` + quoteColumns + ` FROM quotes ORDER BY created_at DESC, id LIMIT $1`

func (q *Queries) ListQuotes(ctx context.Context, limit int32) ([]Quote, error) {
	rows, err := q.db.Query(ctx, listQuotes, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Quote, 0, limit)
	for rows.Next() {
		qt, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, qt)
	}
	return items, rows.Err()
}

const updateQuoteStatus = `UPDATE quotes SET status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + quoteColumns

func (q *Queries) UpdateQuoteStatus(ctx context.Context, id uuid.UUID, status QuoteStatus, now time.Time) (Quote, error) {
	return scanQuote(q.db.QueryRow(ctx, updateQuoteStatus, id, status, now))
}

const attachQuoteCustomer = `UPDATE quotes SET customer_id = $2, updated_at = $3 WHERE id = $1 AND customer_id IS NULL`

// AttachQuoteCustomer links an anonymous quote to the customer who booked it.
func (q *Queries) AttachQuoteCustomer(ctx context.Context, id, customerID uuid.UUID, now time.Time) error {
	_, err := q.db.Exec(ctx, attachQuoteCustomer, id, customerID, now)
	return err
}

const countOpenQuotes = `SELECT count(*) FROM quotes WHERE status IN ('draft', 'sent') AND expires_at > $1`

func (q *Queries) CountOpenQuotes(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOpenQuotes, now).Scan(&n)
	return n, err
}
