package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/domain/product"
)

const (
	orderColumns = `id, customer_id, total_amount, payment_method, status,
		COALESCE(idempotency_key, ''), created_at, updated_at`
	lineColumns = `id, order_id, product_id, quantity, unit_price`

	insertOrderSQL = `INSERT INTO orders (customer_id, total_amount, payment_method, status, idempotency_key)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + orderColumns
	getOrderByKeySQL        = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`
	getOrderByIDSQL         = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY id DESC`
	listLinesByOrdersSQL    = `SELECT ` + lineColumns + ` FROM order_lines WHERE order_id = ANY($1) ORDER BY id`
	updateOrderStatusSQL    = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`
	compareAndSetStatusSQL  = `UPDATE orders SET status = $4, updated_at = now()
		WHERE id = $1 AND customer_id = $2 AND status = $3`

	insertLineSQL = `INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, product_id) DO NOTHING
		RETURNING ` + lineColumns
	getLineSQL = `SELECT ` + lineColumns + ` FROM order_lines WHERE order_id = $1 AND product_id = $2`
	// Guarded decrement: stock never goes below zero.
	takeStockSQL     = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`
	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts o. A conflicting idempotency key loads the stored order
// into o instead.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) (bool, error) {
	rows, err := r.pool.Query(ctx, insertOrderSQL,
		o.CustomerID, o.TotalAmount, o.PaymentMethod, string(o.Status), o.IdempotencyKey,
	)
	if err != nil {
		return false, fmt.Errorf("creating order: %w", err)
	}
	created, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	switch {
	case err == nil:
		*o = created
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Key already taken.
	default:
		if _, ok := constraintViolation(err, codeForeignKeyViolation); ok {
			return false, order.ErrCustomerRequired
		}
		return false, fmt.Errorf("creating order: %w", err)
	}

	rows, err = r.pool.Query(ctx, getOrderByKeySQL, o.IdempotencyKey)
	if err != nil {
		return false, fmt.Errorf("getting order by key: %w", err)
	}
	existing, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		return false, fmt.Errorf("getting order by key: %w", err)
	}
	if err := r.loadLines(ctx, []*order.Order{&existing}); err != nil {
		return false, err
	}
	*o = existing
	return false, nil
}

// AddLine inserts l and takes its quantity from the product stock in one
// transaction. An existing line for the same order and product is loaded
// into l and stock is left alone.
func (r *OrderRepository) AddLine(ctx context.Context, l *order.Line) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(ctx, tx)

	rows, err := tx.Query(ctx, insertLineSQL, l.OrderID, l.ProductID, l.Quantity, l.UnitPrice)
	if err != nil {
		return false, fmt.Errorf("inserting order line: %w", err)
	}
	inserted, err := pgx.CollectExactlyOneRow(rows, scanLine)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		rows, err := tx.Query(ctx, getLineSQL, l.OrderID, l.ProductID)
		if err != nil {
			return false, fmt.Errorf("getting order line: %w", err)
		}
		existing, err := pgx.CollectExactlyOneRow(rows, scanLine)
		if err != nil {
			return false, fmt.Errorf("getting order line: %w", err)
		}
		*l = existing
		return false, nil
	case err != nil:
		if name, ok := constraintViolation(err, codeForeignKeyViolation); ok {
			if strings.Contains(name, "product") {
				return false, product.ErrNotFound
			}
			return false, order.ErrNotFound
		}
		return false, fmt.Errorf("inserting order line: %w", err)
	}

	tag, err := tx.Exec(ctx, takeStockSQL, l.ProductID, l.Quantity)
	if err != nil {
		return false, fmt.Errorf("taking stock for product %d: %w", l.ProductID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, productExistsSQL, l.ProductID).Scan(&exists); err != nil {
			return false, fmt.Errorf("checking product %d: %w", l.ProductID, err)
		}
		if !exists {
			return false, product.ErrNotFound
		}
		return false, &order.InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit order line: %w", err)
	}
	*l = inserted
	return true, nil
}

// GetByID returns the order with its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	if err := r.loadLines(ctx, []*order.Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID int64) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of customer %d: %w", customerID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of customer %d: %w", customerID, err)
	}
	ptrs := make([]*order.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := r.loadLines(ctx, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus sets the status unconditionally.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("updating order %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, order.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// CompareAndSetStatus moves the order from one status to another when it
// belongs to customerID and is currently in from.
func (r *OrderRepository) CompareAndSetStatus(ctx context.Context, id, customerID int64, from, to order.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, compareAndSetStatusSQL, id, customerID, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("updating order %d status: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Lines = []order.Line{}
	}
	rows, err := r.pool.Query(ctx, listLinesByOrdersSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, scanLine)
	if err != nil {
		return fmt.Errorf("listing order lines: %w", err)
	}
	for _, l := range lines {
		o := byID[l.OrderID]
		o.Lines = append(o.Lines, l)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.TotalAmount, &o.PaymentMethod, &status,
		&o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt)
	o.Status = order.Status(status)
	return o, err
}

func scanLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice)
	return l, err
}
