package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Upsert(product domain.Product) error {
	product.SKU = strings.TrimSpace(product.SKU)
	if errs := product.Validate(); len(errs) > 0 {
		return errs[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (sku, product_id, name, stock_quantity, manage_stock, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (sku) DO UPDATE
		SET product_id = EXCLUDED.product_id,
		    name = EXCLUDED.name,
		    stock_quantity = EXCLUDED.stock_quantity,
		    manage_stock = EXCLUDED.manage_stock,
		    updated_at = EXCLUDED.updated_at
	`, product.SKU, product.ProductID, product.Name, product.StockQuantity, product.ManageStock, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	return nil
}

func (r *productRepository) Get(sku string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT sku, product_id, name, stock_quantity, manage_stock, updated_at
		FROM products
		WHERE sku = $1
	`, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// GetMany читает товары одним запросом; для пустого списка в базу не ходит.
func (r *productRepository) GetMany(skus []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(skus))
	args := make([]any, len(skus))
	for i, sku := range skus {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = sku
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT sku, product_id, name, stock_quantity, manage_stock, updated_at
		FROM products
		WHERE sku IN (`+strings.Join(placeholders, ",")+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result[product.SKU] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return result, nil
}

func (r *productRepository) SetStock(sku string, qty int) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = $2,
		    manage_stock = TRUE,
		    updated_at = $3
		WHERE sku = $1
	`, sku, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set product stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("product rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product domain.Product
		stock   sql.NullInt64
	)
	if err := row.Scan(&product.SKU, &product.ProductID, &product.Name, &stock, &product.ManageStock, &product.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	if stock.Valid {
		qty := int(stock.Int64)
		product.StockQuantity = &qty
	}
	return product, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
