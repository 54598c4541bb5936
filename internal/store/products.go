package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/skuflow/skuflow/internal/importer"
)

// FindProductIDBySKU reports whether a product with the SKU already exists.
func (q *queries) FindProductIDBySKU(ctx context.Context, sku string) (int64, bool, error) {
	var id int64
	err := q.db.QueryRow(ctx, `SELECT id FROM products WHERE sku = $1`, sku).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select product by sku: %w", err)
	}
	return id, true, nil
}

// InsertProduct creates a new product owned by the importing job.
func (q *queries) InsertProduct(ctx context.Context, p importer.Product) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO products (import_id, sku, name, price, stock, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ImportID, p.SKU, p.Name, p.Price, p.Stock, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// UpdateProductBySKU overwrites the mutable fields of an existing product.
// Ownership follows the last writer.
func (q *queries) UpdateProductBySKU(ctx context.Context, p importer.Product) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE products
		 SET import_id = $1, name = $2, price = $3, stock = $4, updated_at = $5
		 WHERE sku = $6`,
		p.ImportID, p.Name, p.Price, p.Stock, p.UpdatedAt, p.SKU,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return importer.ErrNotFound
	}
	return nil
}

// ListProducts returns a page of products ordered by id.
func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]importer.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, import_id, sku, name, price, stock, created_at, updated_at
		 FROM products ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var out []importer.Product
	for rows.Next() {
		var p importer.Product
		if err := rows.Scan(&p.ID, &p.ImportID, &p.SKU, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
