package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/mercado/internal/domain/product"
)

const (
	productColumns = `id, COALESCE(category_id, 0), name, description, price, stock, image_ref`

	listProductsSQL   = `SELECT ` + productColumns + ` FROM products ORDER BY id`
	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	createProductSQL  = `INSERT INTO products (category_id, name, description, price, stock, image_ref)
		VALUES (NULLIF($1, 0), $2, $3, $4, $5, $6) RETURNING id`

	listCategoriesSQL = `SELECT id, name FROM categories ORDER BY name`
	createCategorySQL = `INSERT INTO categories (name) VALUES ($1) RETURNING id`
)

var (
	_ product.Repository         = (*ProductRepository)(nil)
	_ product.CategoryRepository = (*ProductRepository)(nil)
)

// ProductRepository implements the catalog repositories.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product with its current stock.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// Create inserts p and sets p.ID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, createProductSQL,
		p.CategoryID, p.Name, p.Description, p.Price, p.Stock, p.ImageRef,
	).Scan(&p.ID)
	if _, ok := constraintViolation(err, codeForeignKeyViolation); ok {
		return product.ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

// ListCategories returns categories ordered by name.
func (r *ProductRepository) ListCategories(ctx context.Context) ([]product.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Category, error) {
		var c product.Category
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
}

// CreateCategory inserts c and sets c.ID.
func (r *ProductRepository) CreateCategory(ctx context.Context, c *product.Category) error {
	if err := r.pool.QueryRow(ctx, createCategorySQL, c.Name).Scan(&c.ID); err != nil {
		return fmt.Errorf("creating category %q: %w", c.Name, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.ImageRef)
	return p, err
}
