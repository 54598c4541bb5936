package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxRows is the row budget applied when a caller passes none.
const DefaultMaxRows = 1000

// DefaultLockWaitTime is how long a run waits for the per-import lock before
// giving up with ErrConflict.
const DefaultLockWaitTime = 10 * time.Second

// Options tunes engine behavior. Zero values select the defaults.
type Options struct {
	MaxConcurrentRuns int
	RunWaitTime       time.Duration
	LockWaitTime      time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Engine drives import jobs through bounded, atomically committed batches.
type Engine struct {
	store    Store
	dir      string // storage base; job file paths are relative to it
	locks    *lockTable
	limiter  *RunLimiter
	lockWait time.Duration
	now      func() time.Time
}

// NewEngine creates an engine reading source files under dir and persisting
// through store.
func NewEngine(store Store, dir string, opts Options) *Engine {
	lockWait := opts.LockWaitTime
	if lockWait <= 0 {
		lockWait = DefaultLockWaitTime
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		store:    store,
		dir:      dir,
		locks:    newLockTable(),
		limiter:  NewRunLimiter(opts.MaxConcurrentRuns, opts.RunWaitTime),
		lockWait: lockWait,
		now:      clock,
	}
}

// Limiter exposes the run limiter for shutdown draining.
func (e *Engine) Limiter() *RunLimiter { return e.limiter }

// RunChunk processes up to maxRows data rows of the import and commits the
// results as one transaction. It is safe to call repeatedly until the
// returned result reports Done. maxRows <= 0 selects DefaultMaxRows.
//
// The call holds the per-import lock for its full duration; a second call for
// the same import waits briefly and then fails with ErrConflict. Any error
// other than the package sentinels means the transaction was rolled back and
// the job is unchanged.
func (e *Engine) RunChunk(ctx context.Context, importID int64, maxRows int) (*ChunkResult, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.limiter.Release()

	release, err := e.locks.acquire(ctx, importID, e.lockWait)
	if err != nil {
		return nil, fmt.Errorf("import %d: %w", importID, err)
	}
	defer release()

	job, err := e.store.GetImport(ctx, importID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("import %d in status %q: %w", importID, job.Status, ErrInvalidState)
	}

	f, err := os.Open(filepath.Join(e.dir, filepath.FromSlash(job.FilePath)))
	if err != nil {
		return nil, fmt.Errorf("open source file for import %d: %w", importID, err)
	}
	defer f.Close()

	start := e.now()
	var res *ChunkResult
	err = e.store.InTx(ctx, func(tx Tx) error {
		if job.Status == StatusPending {
			if err := tx.SetImportStatus(ctx, importID, StatusProcessing, start); err != nil {
				return fmt.Errorf("set status: %w", err)
			}
		}
		batch, err := e.runBatch(ctx, tx, job, f, maxRows, start)
		if err != nil {
			return err
		}
		res = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("chunk processed",
		"import_id", importID,
		"created", res.Created,
		"updated", res.Updated,
		"failed", res.Failed,
		"bytes_processed", res.BytesProcessed,
		"done", res.Done,
	)
	return res, nil
}

// runBatch reads and applies one bounded batch inside the chunk transaction.
func (e *Engine) runBatch(ctx context.Context, tx Tx, job *ImportJob, f *os.File, maxRows int, now time.Time) (*ChunkResult, error) {
	base := job.BytesProcessed
	var rd *csv.Reader

	if base == 0 {
		// First call ever: position past a UTF-8 BOM if present, then
		// require the fixed header. The BOM and header bytes are absorbed
		// into the cursor when the first data row commits.
		n, err := skipBOM(f)
		if err != nil {
			return nil, fmt.Errorf("read source file: %w", err)
		}
		base = int64(n)
		rd = newRowReader(f)

		header, err := rd.Read()
		if err != nil || !validHeader(header) {
			return nil, fmt.Errorf("import %d: %w", job.ID, ErrMalformedHeader)
		}
	} else {
		if _, err := f.Seek(base, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek to offset %d: %w", base, err)
		}
		rd = newRowReader(f)
	}

	res := &ChunkResult{ImportID: job.ID}
	bytesProcessed := job.BytesProcessed
	rowsTotal := job.ProcessedRows
	rowsThisChunk := 0
	done := false

	for rowsThisChunk < maxRows {
		row, err := rd.Read()
		if err == io.EOF {
			done = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row after offset %d: %w", bytesProcessed, err)
		}

		failure, err := e.applyRow(ctx, tx, job.ID, row, rowsTotal+1, now, res)
		if err != nil {
			return nil, err
		}
		if failure != nil {
			res.Errors = append(res.Errors, *failure)
		}

		bytesProcessed = base + rd.InputOffset()
		rowsTotal++
		rowsThisChunk++
	}

	status := StatusProcessing
	if done {
		status = StatusFinished
	}
	ok, err := tx.CommitProgress(ctx, ProgressUpdate{
		ImportID:           job.ID,
		PrevBytesProcessed: job.BytesProcessed,
		BytesProcessed:     bytesProcessed,
		ProcessedRows:      rowsTotal,
		Status:             status,
		Now:                now,
	})
	if err != nil {
		return nil, fmt.Errorf("commit progress: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("import %d cursor moved underneath this run: %w", job.ID, ErrConflict)
	}

	res.BytesProcessed = bytesProcessed
	res.ProcessedRows = rowsTotal
	res.Done = done
	return res, nil
}

// applyRow validates and applies one data row, updating the per-call counters
// on res. Validation failures are recorded and returned as a RowFailure; only
// unexpected storage errors are returned as errors.
func (e *Engine) applyRow(ctx context.Context, tx Tx, importID int64, row []string, rowNumber int64, now time.Time, res *ChunkResult) (*RowFailure, error) {
	sku := fieldAt(row, 0, "")
	name := fieldAt(row, 1, "")
	price := fieldAt(row, 2, "")
	stock := fieldAt(row, 3, "0")

	if msgs := validateRow(sku, name, price, stock); len(msgs) > 0 {
		raw := rawRowJSON(row)
		var skuPtr *string
		if sku != "" {
			skuPtr = &sku
		}
		err := tx.InsertRowError(ctx, RowError{
			ImportID:  importID,
			RowNumber: rowNumber,
			SKU:       skuPtr,
			Message:   strings.Join(msgs, "; "),
			RawRow:    raw,
			CreatedAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("log row error: %w", err)
		}
		res.Failed++
		return &RowFailure{
			RowNumber: rowNumber,
			SKU:       sku,
			Errors:    msgs,
			RawRow:    raw,
		}, nil
	}

	// Validation guarantees both parse.
	priceVal, _ := strconv.ParseFloat(price, 64)
	stockVal, _ := strconv.ParseFloat(stock, 64)

	p := Product{
		ImportID:  importID,
		SKU:       sku,
		Name:      name,
		Price:     priceVal,
		Stock:     int(stockVal),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, exists, err := tx.FindProductIDBySKU(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("find product %q: %w", sku, err)
	}
	if exists {
		if err := tx.UpdateProductBySKU(ctx, p); err != nil {
			return nil, fmt.Errorf("update product %q: %w", sku, err)
		}
		res.Updated++
		return nil, nil
	}
	if err := tx.InsertProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("insert product %q: %w", sku, err)
	}
	res.Created++
	return nil, nil
}

// newRowReader builds the CSV reader used for both header and data rows.
// Variable-width rows are tolerated; validation handles short rows.
func newRowReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// skipBOM consumes a leading UTF-8 BOM and returns how many bytes it skipped.
// The file position is left immediately after the BOM, or at the start when
// none is present.
func skipBOM(f *os.File) (int, error) {
	var buf [3]byte
	n, err := io.ReadFull(f, buf[:])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}
	if n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
		return 3, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return 0, nil
}

func rawRowJSON(row []string) string {
	b, err := json.Marshal(row)
	if err != nil {
		return "[]"
	}
	return string(b)
}
