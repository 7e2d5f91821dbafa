package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/mercado/internal/domain/customer"
)

const (
	insertCustomerSQL = `INSERT INTO customers (name, email, password_hash, phone, address)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	getCustomerByEmailSQL = `SELECT id, name, email, password_hash, phone, address
		FROM customers WHERE email = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Create inserts c and sets c.ID.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	err := r.pool.QueryRow(ctx, insertCustomerSQL,
		c.Name, c.Email, c.PasswordHash, c.Phone, c.Address,
	).Scan(&c.ID)
	if _, ok := constraintViolation(err, codeUniqueViolation); ok {
		return customer.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("creating customer: %w", err)
	}
	return nil
}

// GetByEmail looks a customer up by normalized email.
func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, getCustomerByEmailSQL, email).
		Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Phone, &c.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, customer.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting customer by email: %w", err)
	}
	return &c, nil
}
