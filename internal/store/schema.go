package store

import (
	"context"
	"fmt"
)

// Schema bootstrap. CREATE IF NOT EXISTS keeps startup idempotent; anything
// beyond adding these tables is out of scope.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS imports (
		id              bigserial PRIMARY KEY,
		file_name       text NOT NULL,
		file_path       text NOT NULL,
		progress_status text NOT NULL DEFAULT 'pending'
			CHECK (progress_status IN ('pending','processing','finished','failed')),
		file_size_bytes bigint NOT NULL DEFAULT 0,
		bytes_processed bigint NOT NULL DEFAULT 0,
		processed_rows  bigint NOT NULL DEFAULT 0,
		created_at      timestamptz NOT NULL DEFAULT now(),
		updated_at      timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS products (
		id         bigserial PRIMARY KEY,
		import_id  bigint NOT NULL REFERENCES imports(id),
		sku        text NOT NULL,
		name       text NOT NULL,
		price      numeric(12,2) NOT NULL,
		stock      integer NOT NULL DEFAULT 0,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_sku ON products (sku)`,

	`CREATE TABLE IF NOT EXISTS import_errors (
		id         bigserial PRIMARY KEY,
		import_id  bigint NOT NULL REFERENCES imports(id),
		row_number bigint NOT NULL,
		sku        text,
		message    text NOT NULL,
		raw_row    text,
		created_at timestamptz NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_import_errors_import_id ON import_errors (import_id)`,
}

// Migrate creates the schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
