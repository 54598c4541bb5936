package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/skuflow/skuflow/internal/importer"
)

// CreateImport inserts a new pending import record and returns its id.
// Implements the upload ledger: called once per finalized upload.
func (s *Store) CreateImport(ctx context.Context, fileName, filePath string, sizeBytes int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO imports (file_name, file_path, progress_status, file_size_bytes, bytes_processed, processed_rows)
		 VALUES ($1, $2, 'pending', $3, 0, 0)
		 RETURNING id`,
		fileName, filePath, sizeBytes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert import: %w", err)
	}
	return id, nil
}

// GetImport fetches an import by id, returning importer.ErrNotFound when it
// does not exist.
func (s *Store) GetImport(ctx context.Context, id int64) (*importer.ImportJob, error) {
	return (&queries{db: s.pool}).getImport(ctx, id)
}

func (q *queries) getImport(ctx context.Context, id int64) (*importer.ImportJob, error) {
	var (
		job    importer.ImportJob
		status string
	)
	err := q.db.QueryRow(ctx,
		`SELECT id, file_name, file_path, progress_status, file_size_bytes,
		        bytes_processed, processed_rows, created_at, updated_at
		 FROM imports WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.FileName, &job.FilePath, &status, &job.FileSizeBytes,
		&job.BytesProcessed, &job.ProcessedRows, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, importer.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select import %d: %w", id, err)
	}
	job.Status = importer.Status(status)
	return &job, nil
}

// SetImportStatus updates only the lifecycle status.
func (q *queries) SetImportStatus(ctx context.Context, id int64, status importer.Status, now time.Time) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE imports SET progress_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), now, id,
	)
	if err != nil {
		return fmt.Errorf("update import status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return importer.ErrNotFound
	}
	return nil
}

// CommitProgress advances the cursor with a compare-and-swap on the stored
// bytes_processed value. A false return means another run committed first.
func (q *queries) CommitProgress(ctx context.Context, upd importer.ProgressUpdate) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE imports
		 SET bytes_processed = $1, processed_rows = $2, progress_status = $3, updated_at = $4
		 WHERE id = $5 AND bytes_processed = $6`,
		upd.BytesProcessed, upd.ProcessedRows, string(upd.Status), upd.Now,
		upd.ImportID, upd.PrevBytesProcessed,
	)
	if err != nil {
		return false, fmt.Errorf("update import progress: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
