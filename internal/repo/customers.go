package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const customerColumns = `id, first_name, last_name, email, phone, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	return c, mapErr(err)
}

const getCustomerByEmail = `SELECT ` + customerColumns + ` FROM customers WHERE lower(email) = lower($1)`

// GetCustomerByEmail matches the email case-insensitively.
func (q *Queries) GetCustomerByEmail(ctx context.Context, email string) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomerByEmail, strings.TrimSpace(email)))
}

const getCustomer = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomer, id))
}

type CreateCustomerParams struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Now       time.Time
}

const createCustomer = `INSERT INTO customers (id, first_name, last_name, email, phone, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING ` + customerColumns

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, createCustomer,
		arg.ID, arg.FirstName, arg.LastName, strings.TrimSpace(arg.Email), arg.Phone, arg.Now))
}
