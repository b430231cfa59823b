package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const bookingColumns = `b.id, b.customer_id, b.quote_id, b.services, b.property_type, b.bedrooms, b.bathrooms,
b.square_footage, b.address, b.city, b.postal_code, b.preferred_date, b.preferred_time, b.special_requests,
b.breakdown, b.subtotal, b.bundle_discount, b.taxes, b.total, b.currency, b.status, b.priority,
b.assigned_to, b.estimated_duration, b.scheduled_at, b.completed_at, b.created_at, b.updated_at`

const bookingCustomerColumns = `c.id, c.first_name, c.last_name, c.email, c.phone, c.created_at, c.updated_at`

func bookingDest(b *Booking) []any {
	return []any{
		&b.ID, &b.CustomerID, &b.QuoteID, &b.Services, &b.PropertyType, &b.Bedrooms, &b.Bathrooms,
		&b.SquareFootage, &b.Address, &b.City, &b.PostalCode, &b.PreferredDate, &b.PreferredTime, &b.SpecialRequests,
		&b.Breakdown, &b.Subtotal, &b.BundleDiscount, &b.Taxes, &b.Total, &b.Currency, &b.Status, &b.Priority,
		&b.AssignedTo, &b.EstimatedDuration, &b.ScheduledAt, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt,
	}
}

func scanBooking(row interface{ Scan(...any) error }) (Booking, error) {
	var b Booking
	err := row.Scan(bookingDest(&b)...)
	return b, mapErr(err)
}

func scanBookingWithCustomer(row interface{ Scan(...any) error }) (BookingWithCustomer, error) {
	var out BookingWithCustomer
	c := &out.Customer
	dest := append(bookingDest(&out.Booking),
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	err := row.Scan(dest...)
	return out, mapErr(err)
}

const createBooking = `INSERT INTO bookings AS b (id, customer_id, quote_id, services, property_type, bedrooms, bathrooms,
square_footage, address, city, postal_code, preferred_date, preferred_time, special_requests,
breakdown, subtotal, bundle_discount, taxes, total, currency, status, priority, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $23)
RETURNING ` + bookingColumns

// CreateBooking inserts b using its ID and CreatedAt.
func (q *Queries) CreateBooking(ctx context.Context, b Booking) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, createBooking,
		b.ID, b.CustomerID, b.QuoteID, b.Services, b.PropertyType, b.Bedrooms, b.Bathrooms,
		b.SquareFootage, b.Address, b.City, b.PostalCode, b.PreferredDate, b.PreferredTime, b.SpecialRequests,
		b.Breakdown, b.Subtotal, b.BundleDiscount, b.Taxes, b.Total, b.Currency, b.Status, b.Priority, b.CreatedAt,
	))
}

const getBooking = `SELECT ` + bookingColumns + `, ` + bookingCustomerColumns + `
FROM bookings b JOIN customers c ON c.id = b.customer_id
WHERE b.id = $1`

func (q *Queries) GetBooking(ctx context.Context, id uuid.UUID) (BookingWithCustomer, error) {
	return scanBookingWithCustomer(q.db.QueryRow(ctx, getBooking, id))
}

const getBookingForUpdate = `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1 FOR UPDATE`

// GetBookingForUpdate locks the row until the surrounding transaction ends.
func (q *Queries) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, getBookingForUpdate, id))
}

type ListBookingsParams struct {
	Status *BookingStatus
	From   *time.Time
	To     *time.Time
	Limit  int32
}

const listBookings = `SELECT ` + bookingColumns + `, ` + bookingCustomerColumns + `
FROM bookings b JOIN customers c ON c.id = b.customer_id
WHERE ($1::text IS NULL OR b.status = $1)
  AND ($2::timestamptz IS NULL OR b.created_at >= $2)
  AND ($3::timestamptz IS NULL OR b.created_at < $3)
ORDER BY b.created_at DESC, b.id
LIMIT $4`

// ListBookings returns bookings newest first with customer contact details.
func (q *Queries) ListBookings(ctx context.Context, arg ListBookingsParams) ([]BookingWithCustomer, error) {
	var status *string
	if arg.Status != nil {
		s := string(*arg.Status)
		status = &s
	}
	rows, err := q.db.Query(ctx, listBookings, status, arg.From, arg.To, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]BookingWithCustomer, 0, arg.Limit)
	for rows.Next() {
		item, err := scanBookingWithCustomer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type UpdateBookingParams struct {
	ID                uuid.UUID
	Status            BookingStatus
	Priority          *BookingPriority
	AssignedTo        *string
	EstimatedDuration *int32
	ScheduledAt       *time.Time
	CompletedAt       *time.Time
	Now               time.Time
}

const updateBooking = `UPDATE bookings AS b SET
    status = $2,
    assigned_to = COALESCE($3, b.assigned_to),
    estimated_duration = COALESCE($4, b.estimated_duration),
    scheduled_at = COALESCE($5, b.scheduled_at),
    completed_at = COALESCE($6, b.completed_at),
    priority = COALESCE($8, b.priority),
    updated_at = $7
WHERE b.id = $1
RETURNING ` + bookingColumns

// UpdateBooking sets the status and overwrites the optional fields that are non-nil.
func (q *Queries) UpdateBooking(ctx context.Context, arg UpdateBookingParams) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, updateBooking,
		arg.ID, arg.Status, arg.AssignedTo, arg.EstimatedDuration, arg.ScheduledAt, arg.CompletedAt, arg.Now, arg.Priority))
}

const deleteBooking = `DELETE FROM bookings WHERE id = $1`

func (q *Queries) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, deleteBooking, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BookingStatusCount is one row of the per-status aggregate.
type BookingStatusCount struct {
	Status BookingStatus
	Count  int64
}

const countBookingsByStatus = `SELECT status, count(*) FROM bookings GROUP BY status ORDER BY status`

func (q *Queries) CountBookingsByStatus(ctx context.Context) ([]BookingStatusCount, error) {
	rows, err := q.db.Query(ctx, countBookingsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BookingStatusCount
	for rows.Next() {
		var row BookingStatusCount
		if err := rows.Scan(&row.Status, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const sumBookingRevenue = `SELECT COALESCE(sum(total), 0)::text FROM bookings WHERE status IN ('confirmed', 'completed')`

// SumBookingRevenue totals confirmed and completed bookings.
func (q *Queries) SumBookingRevenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.db.QueryRow(ctx, sumBookingRevenue).Scan(&total)
	return total, err
}
