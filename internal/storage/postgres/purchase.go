package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/mercado/internal/domain/product"
	"github.com/xenking/mercado/internal/domain/purchase"
)

const (
	insertSupplierSQL = `INSERT INTO suppliers (name, tax_id, city, phone, email)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	insertPurchaseOrderSQL = `INSERT INTO purchase_orders (supplier_id, status)
		VALUES ($1, $2) RETURNING id, created_at`
	insertPurchaseLineSQL = `INSERT INTO purchase_order_lines (purchase_order_id, product_id, quantity, unit_cost)
		VALUES ($1, $2, $3, $4) RETURNING id`
	putStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`
)

var _ purchase.Repository = (*PurchaseRepository)(nil)

// PurchaseRepository implements purchase.Repository backed by PostgreSQL.
type PurchaseRepository struct {
	pool *pgxpool.Pool
}

// NewPurchaseRepository returns a PurchaseRepository that uses the given pool.
func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{pool: pool}
}

// CreateSupplier inserts s and sets s.ID.
func (r *PurchaseRepository) CreateSupplier(ctx context.Context, s *purchase.Supplier) error {
	err := r.pool.QueryRow(ctx, insertSupplierSQL, s.Name, s.TaxID, s.City, s.Phone, s.Email).Scan(&s.ID)
	if _, ok := constraintViolation(err, codeUniqueViolation); ok {
		return purchase.ErrDuplicateTaxID
	}
	if err != nil {
		return fmt.Errorf("creating supplier: %w", err)
	}
	return nil
}

// CreateOrder inserts o and sets its ID and creation time.
func (r *PurchaseRepository) CreateOrder(ctx context.Context, o *purchase.Order) error {
	err := r.pool.QueryRow(ctx, insertPurchaseOrderSQL, o.SupplierID, o.Status).Scan(&o.ID, &o.CreatedAt)
	if _, ok := constraintViolation(err, codeForeignKeyViolation); ok {
		return purchase.ErrSupplierNotFound
	}
	if err != nil {
		return fmt.Errorf("creating purchase order: %w", err)
	}
	return nil
}

// AddLine inserts l and adds its quantity to the product stock.
func (r *PurchaseRepository) AddLine(ctx context.Context, l *purchase.Line) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(ctx, tx)

	err = tx.QueryRow(ctx, insertPurchaseLineSQL,
		l.PurchaseOrderID, l.ProductID, l.Quantity, l.UnitCost,
	).Scan(&l.ID)
	if name, ok := constraintViolation(err, codeForeignKeyViolation); ok {
		if strings.Contains(name, "product") {
			return product.ErrNotFound
		}
		return purchase.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inserting purchase order line: %w", err)
	}

	if _, err := tx.Exec(ctx, putStockSQL, l.ProductID, l.Quantity); err != nil {
		return fmt.Errorf("adding stock for product %d: %w", l.ProductID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit purchase order line: %w", err)
	}
	return nil
}
