package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// Status returns the progress snapshot for an import, including completion
// percentage bounded to [0,100] and rounded to two decimals.
func (e *Engine) Status(ctx context.Context, importID int64) (*ImportStatus, error) {
	job, err := e.store.GetImport(ctx, importID)
	if err != nil {
		return nil, err
	}

	pct := 0.0
	if job.FileSizeBytes > 0 {
		pct = float64(job.BytesProcessed) / float64(job.FileSizeBytes) * 100
	}
	if pct > 100 {
		pct = 100
	}
	pct = math.Round(pct*100) / 100

	return &ImportStatus{
		ImportID:       job.ID,
		FileName:       job.FileName,
		ProgressStatus: job.Status,
		ProcessedRows:  job.ProcessedRows,
		FileSizeBytes:  job.FileSizeBytes,
		BytesProcessed: job.BytesProcessed,
		Percentage:     pct,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}, nil
}

// reportColumns is the fixed column set of the error report.
var reportColumns = []string{"row_number", "sku", "message", "raw_row", "created_at"}

// ErrorReport writes the full error history of an import to w as CSV. An
// existing import with no errors yields a header-only report; ErrNotFound is
// returned only when the import itself is unknown.
func (e *Engine) ErrorReport(ctx context.Context, importID int64, w io.Writer) error {
	if _, err := e.store.GetImport(ctx, importID); err != nil {
		return err
	}
	rows, err := e.store.ListRowErrors(ctx, importID)
	if err != nil {
		return fmt.Errorf("list row errors: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(reportColumns); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, r := range rows {
		sku := ""
		if r.SKU != nil {
			sku = *r.SKU
		}
		rec := []string{
			strconv.FormatInt(r.RowNumber, 10),
			sku,
			r.Message,
			r.RawRow,
			r.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
