package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/skuflow/skuflow/internal/importer"
)

// InsertRowError appends one row-failure record. The log is append-only;
// nothing ever updates or deletes these rows.
func (q *queries) InsertRowError(ctx context.Context, e importer.RowError) error {
	sku := pgtype.Text{}
	if e.SKU != nil {
		sku = pgtype.Text{String: *e.SKU, Valid: true}
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO import_errors (import_id, row_number, sku, message, raw_row, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ImportID, e.RowNumber, sku, e.Message, e.RawRow, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert row error: %w", err)
	}
	return nil
}

// ListRowErrors returns every row error for the import, oldest first.
func (s *Store) ListRowErrors(ctx context.Context, importID int64) ([]importer.RowError, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT import_id, row_number, sku, message, raw_row, created_at
		 FROM import_errors WHERE import_id = $1 ORDER BY id`,
		importID,
	)
	if err != nil {
		return nil, fmt.Errorf("select row errors: %w", err)
	}
	defer rows.Close()

	var out []importer.RowError
	for rows.Next() {
		var (
			e   importer.RowError
			sku pgtype.Text
		)
		if err := rows.Scan(&e.ImportID, &e.RowNumber, &sku, &e.Message, &e.RawRow, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row error: %w", err)
		}
		if sku.Valid {
			v := sku.String
			e.SKU = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
