// Package importertest provides an in-memory implementation of the importer
// storage interfaces for tests. Transactions are staged on cloned state and
// swapped in only on commit, so rollback behavior matches the real store.
package importertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skuflow/skuflow/internal/importer"
)

// MemStore is an in-memory importer.Store. It also implements the import
// ledger used by the chunk store (CreateImport) and the product listing
// used by the web layer (ListProducts).
type MemStore struct {
	mu            sync.Mutex
	imports       map[int64]importer.ImportJob
	products      map[string]importer.Product
	rowErrors     []importer.RowError
	nextImportID  int64
	nextProductID int64

	// FailProductWrite, when non-nil, is consulted before every product
	// insert or update; a non-nil result aborts the transaction.
	FailProductWrite func(p importer.Product) error

	// ForceCursorConflict makes every CommitProgress report a CAS mismatch.
	ForceCursorConflict bool
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		imports:  make(map[int64]importer.ImportJob),
		products: make(map[string]importer.Product),
	}
}

// CreateImport records a new pending import and returns its id.
func (m *MemStore) CreateImport(ctx context.Context, fileName, filePath string, sizeBytes int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextImportID++
	now := time.Now().UTC()
	m.imports[m.nextImportID] = importer.ImportJob{
		ID:            m.nextImportID,
		FileName:      fileName,
		FilePath:      filePath,
		Status:        importer.StatusPending,
		FileSizeBytes: sizeBytes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return m.nextImportID, nil
}

// PutImport seeds a job, assigning an id when the job has none.
func (m *MemStore) PutImport(job importer.ImportJob) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == 0 {
		m.nextImportID++
		job.ID = m.nextImportID
	} else if job.ID > m.nextImportID {
		m.nextImportID = job.ID
	}
	m.imports[job.ID] = job
	return job.ID
}

// Import returns a copy of the job, or false when absent.
func (m *MemStore) Import(id int64) (importer.ImportJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.imports[id]
	return job, ok
}

// Product returns a copy of the product with the SKU, or false when absent.
func (m *MemStore) Product(sku string) (importer.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[sku]
	return p, ok
}

// RowErrors returns a copy of every logged row error.
func (m *MemStore) RowErrors() []importer.RowError {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]importer.RowError, len(m.rowErrors))
	copy(out, m.rowErrors)
	return out
}

// GetImport implements importer.Store.
func (m *MemStore) GetImport(ctx context.Context, id int64) (*importer.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.imports[id]
	if !ok {
		return nil, importer.ErrNotFound
	}
	cp := job
	return &cp, nil
}

// ListRowErrors implements importer.Store.
func (m *MemStore) ListRowErrors(ctx context.Context, importID int64) ([]importer.RowError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []importer.RowError
	for _, e := range m.rowErrors {
		if e.ImportID == importID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListProducts returns products ordered by id.
func (m *MemStore) ListProducts(ctx context.Context, limit, offset int) ([]importer.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]importer.Product, 0, len(m.products))
	for _, p := range m.products {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// InTx implements importer.Store. The callback operates on cloned state; the
// clone replaces the live state only when the callback succeeds.
func (m *MemStore) InTx(ctx context.Context, fn func(importer.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		store:     m,
		imports:   cloneImports(m.imports),
		products:  cloneProducts(m.products),
		rowErrors: append([]importer.RowError(nil), m.rowErrors...),
	}
	if err := fn(tx); err != nil {
		return err
	}

	m.imports = tx.imports
	m.products = tx.products
	m.rowErrors = tx.rowErrors
	return nil
}

type memTx struct {
	store     *MemStore
	imports   map[int64]importer.ImportJob
	products  map[string]importer.Product
	rowErrors []importer.RowError
}

func (t *memTx) SetImportStatus(ctx context.Context, id int64, status importer.Status, now time.Time) error {
	job, ok := t.imports[id]
	if !ok {
		return importer.ErrNotFound
	}
	job.Status = status
	job.UpdatedAt = now
	t.imports[id] = job
	return nil
}

func (t *memTx) CommitProgress(ctx context.Context, upd importer.ProgressUpdate) (bool, error) {
	if t.store.ForceCursorConflict {
		return false, nil
	}
	job, ok := t.imports[upd.ImportID]
	if !ok {
		return false, importer.ErrNotFound
	}
	if job.BytesProcessed != upd.PrevBytesProcessed {
		return false, nil
	}
	job.BytesProcessed = upd.BytesProcessed
	job.ProcessedRows = upd.ProcessedRows
	job.Status = upd.Status
	job.UpdatedAt = upd.Now
	t.imports[upd.ImportID] = job
	return true, nil
}

func (t *memTx) FindProductIDBySKU(ctx context.Context, sku string) (int64, bool, error) {
	p, ok := t.products[sku]
	if !ok {
		return 0, false, nil
	}
	return p.ID, true, nil
}

func (t *memTx) InsertProduct(ctx context.Context, p importer.Product) error {
	if t.store.FailProductWrite != nil {
		if err := t.store.FailProductWrite(p); err != nil {
			return err
		}
	}
	t.store.nextProductID++
	p.ID = t.store.nextProductID
	t.products[p.SKU] = p
	return nil
}

func (t *memTx) UpdateProductBySKU(ctx context.Context, p importer.Product) error {
	if t.store.FailProductWrite != nil {
		if err := t.store.FailProductWrite(p); err != nil {
			return err
		}
	}
	existing, ok := t.products[p.SKU]
	if !ok {
		return importer.ErrNotFound
	}
	existing.ImportID = p.ImportID
	existing.Name = p.Name
	existing.Price = p.Price
	existing.Stock = p.Stock
	existing.UpdatedAt = p.UpdatedAt
	t.products[p.SKU] = existing
	return nil
}

func (t *memTx) InsertRowError(ctx context.Context, e importer.RowError) error {
	t.rowErrors = append(t.rowErrors, e)
	return nil
}

func cloneImports(in map[int64]importer.ImportJob) map[int64]importer.ImportJob {
	out := make(map[int64]importer.ImportJob, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneProducts(in map[string]importer.Product) map[string]importer.Product {
	out := make(map[string]importer.Product, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
