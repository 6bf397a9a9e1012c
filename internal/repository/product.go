package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/respa-payments/internal/domain/product"
)

const (
	productColumns = `id, sku, type, name, pretax_price, tax_percentage, price_type`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		sku = EXCLUDED.sku,
		type = EXCLUDED.type,
		name = EXCLUDED.name,
		pretax_price = EXCLUDED.pretax_price,
		tax_percentage = EXCLUDED.tax_percentage,
		price_type = EXCLUDED.price_type`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByIDs returns products matching any of the given IDs. Missing IDs are
// silently skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert validates p and inserts or replaces it.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.SKU, string(p.Type), p.Name, p.PretaxPrice, p.TaxPercentage, string(p.PriceType),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p              product.Product
		typ, priceType string
	)
	err := row.Scan(&p.ID, &p.SKU, &typ, &p.Name, &p.PretaxPrice, &p.TaxPercentage, &priceType)
	p.Type = product.Type(typ)
	p.PriceType = product.PriceType(priceType)
	return p, err
}
