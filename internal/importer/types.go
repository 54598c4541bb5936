// Package importer implements the streaming CSV import engine.
//
// An import job is driven to completion by repeated RunChunk calls, each of
// which reads a bounded batch of rows from the stored source file, applies
// them to the product table, records row-level failures, and commits the new
// byte cursor atomically. The persisted cursor makes every call resumable:
// any process can pick up an import where the last committed call left off.
package importer

import (
	"context"
	"time"
)

// Status is the lifecycle state of an import job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusFinished   Status = "finished"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status permits no further processing.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// ImportJob is the durable record of one import, including the byte cursor
// into its source file. BytesProcessed always points at the end of a fully
// applied row, never mid-row.
type ImportJob struct {
	ID             int64
	FileName       string
	FilePath       string // relative to the storage directory
	Status         Status
	FileSizeBytes  int64
	BytesProcessed int64
	ProcessedRows  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Product is one imported record, unique by SKU.
type Product struct {
	ID        int64
	ImportID  int64
	SKU       string
	Name      string
	Price     float64
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RowError is an append-only record of a single failed data row.
type RowError struct {
	ImportID  int64
	RowNumber int64
	SKU       *string // nil when the row had no parseable SKU
	Message   string
	RawRow    string // JSON snapshot of the raw fields
	CreatedAt time.Time
}

// RowFailure is the per-call view of a failed row returned by RunChunk.
type RowFailure struct {
	RowNumber int64    `json:"row_number"`
	SKU       string   `json:"sku"`
	Errors    []string `json:"errors"`
	RawRow    string   `json:"raw_row"`
}

// ChunkResult summarizes a single RunChunk call. Created/Updated/Failed and
// Errors cover this call only; BytesProcessed and ProcessedRows are the new
// cumulative totals.
type ChunkResult struct {
	ImportID       int64        `json:"import_id"`
	Created        int          `json:"created"`
	Updated        int          `json:"updated"`
	Failed         int          `json:"failed"`
	BytesProcessed int64        `json:"bytes_processed"`
	ProcessedRows  int64        `json:"processed_rows"`
	Done           bool         `json:"done"`
	Errors         []RowFailure `json:"errors"`
}

// ImportStatus is the progress snapshot returned by Status.
type ImportStatus struct {
	ImportID       int64     `json:"import_id"`
	FileName       string    `json:"file_name"`
	ProgressStatus Status    `json:"progress_status"`
	ProcessedRows  int64     `json:"processed_rows"`
	FileSizeBytes  int64     `json:"file_size_bytes"`
	BytesProcessed int64     `json:"bytes_processed"`
	Percentage     float64   `json:"percentage"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProgressUpdate carries the cursor advance committed at the end of a chunk.
// PrevBytesProcessed is the cursor value observed at the start of the call;
// the store must refuse the update if the stored cursor no longer matches,
// which catches concurrent runs from other processes.
type ProgressUpdate struct {
	ImportID           int64
	PrevBytesProcessed int64
	BytesProcessed     int64
	ProcessedRows      int64
	Status             Status
	Now                time.Time
}

// Store is the persistence surface the engine reads outside a transaction.
type Store interface {
	// GetImport returns ErrNotFound when the import does not exist.
	GetImport(ctx context.Context, id int64) (*ImportJob, error)

	// ListRowErrors returns every row error logged for the import, oldest first.
	ListRowErrors(ctx context.Context, importID int64) ([]RowError, error)

	// InTx runs fn inside a single transaction. If fn returns an error the
	// transaction is rolled back and the error is returned unchanged.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write surface available inside a chunk transaction. Every mutation
// of a RunChunk call goes through one Tx so that the whole batch commits or
// rolls back together.
type Tx interface {
	SetImportStatus(ctx context.Context, id int64, status Status, now time.Time) error

	// CommitProgress applies the cursor update. It returns false when the
	// stored cursor did not match PrevBytesProcessed.
	CommitProgress(ctx context.Context, upd ProgressUpdate) (bool, error)

	// FindProductIDBySKU reports whether a product with the SKU exists.
	FindProductIDBySKU(ctx context.Context, sku string) (int64, bool, error)

	InsertProduct(ctx context.Context, p Product) error
	UpdateProductBySKU(ctx context.Context, p Product) error
	InsertRowError(ctx context.Context, e RowError) error
}
