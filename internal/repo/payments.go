package repo

import (
	"context"
	"time"
)

const paymentColumns = `id, booking_id, quote_id, provider, provider_ref, client_secret, amount_minor, currency,
customer_email, status, payload, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.BookingID, &p.QuoteID, &p.Provider, &p.ProviderRef, &p.ClientSecret, &p.AmountMinor, &p.Currency,
		&p.CustomerEmail, &p.Status, &p.Payload, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, mapErr(err)
}

const createPayment = `INSERT INTO payments (id, booking_id, quote_id, provider, provider_ref, client_secret, amount_minor,
currency, customer_email, status, payload, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
RETURNING ` + paymentColumns

func (q *Queries) CreatePayment(ctx context.Context, p Payment) (Payment, error) {
	payload := p.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return scanPayment(q.db.QueryRow(ctx, createPayment,
		p.ID, p.BookingID, p.QuoteID, p.Provider, p.ProviderRef, p.ClientSecret, p.AmountMinor,
		p.Currency, p.CustomerEmail, p.Status, payload, p.CreatedAt,
	))
}

const getPaymentByProviderRef = `SELECT ` + paymentColumns + ` FROM payments WHERE provider = $1 AND provider_ref = $2`

func (q *Queries) GetPaymentByProviderRef(ctx context.Context, provider, ref string) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentByProviderRef, provider, ref))
}

const updatePaymentStatus = `UPDATE payments SET status = $3, payload = $4, updated_at = $5
WHERE provider = $1 AND provider_ref = $2
RETURNING ` + paymentColumns

// UpdatePaymentStatus records the provider's latest view of the payment.
func (q *Queries) UpdatePaymentStatus(ctx context.Context, provider, ref string, status PaymentStatus, payload []byte, now time.Time) (Payment, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return scanPayment(q.db.QueryRow(ctx, updatePaymentStatus, provider, ref, status, payload, now))
}
