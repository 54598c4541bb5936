package importer_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/skuflow/skuflow/internal/importer"
	"github.com/skuflow/skuflow/internal/importer/importertest"
)

func TestStatus_Percentage(t *testing.T) {
	tests := []struct {
		name  string
		size  int64
		bytes int64
		want  float64
	}{
		{"fresh", 1000, 0, 0},
		{"third", 3000, 1000, 33.33},
		{"complete", 1000, 1000, 100},
		{"cursor past size", 1000, 1500, 100},
		{"zero size file", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := importertest.NewMemStore()
			id := store.PutImport(importer.ImportJob{
				FileName:       "f.csv",
				FilePath:       "f.csv",
				Status:         importer.StatusProcessing,
				FileSizeBytes:  tt.size,
				BytesProcessed: tt.bytes,
			})

			eng := importer.NewEngine(store, t.TempDir(), importer.Options{})
			st, err := eng.Status(context.Background(), id)
			if err != nil {
				t.Fatalf("Status failed: %v", err)
			}
			if st.Percentage != tt.want {
				t.Errorf("Percentage = %v, want %v", st.Percentage, tt.want)
			}
		})
	}
}

func TestStatus_UnknownImport(t *testing.T) {
	eng := importer.NewEngine(importertest.NewMemStore(), t.TempDir(), importer.Options{})
	if _, err := eng.Status(context.Background(), 99); !errors.Is(err, importer.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestErrorReport(t *testing.T) {
	store := importertest.NewMemStore()
	id := store.PutImport(importer.ImportJob{FileName: "f.csv", FilePath: "f.csv", Status: importer.StatusFinished})

	when := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sku := "A1"
	err := store.InTx(context.Background(), func(tx importer.Tx) error {
		if err := tx.InsertRowError(context.Background(), importer.RowError{
			ImportID: id, RowNumber: 2, SKU: &sku,
			Message: "Price must be a valid number.", RawRow: `["A1","Widget","abc","1"]`, CreatedAt: when,
		}); err != nil {
			return err
		}
		return tx.InsertRowError(context.Background(), importer.RowError{
			ImportID: id, RowNumber: 5,
			Message: "SKU is required.", RawRow: `["","X","1","1"]`, CreatedAt: when,
		})
	})
	if err != nil {
		t.Fatalf("seed row errors: %v", err)
	}

	eng := importer.NewEngine(store, t.TempDir(), importer.Options{})
	var buf bytes.Buffer
	if err := eng.ErrorReport(context.Background(), id, &buf); err != nil {
		t.Fatalf("ErrorReport failed: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("report is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("report has %d records, want 3", len(records))
	}

	wantHeader := []string{"row_number", "sku", "message", "raw_row", "created_at"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, records[0][i], col)
		}
	}

	if records[1][0] != "2" || records[1][1] != "A1" {
		t.Errorf("first row = %v", records[1])
	}
	if records[1][4] != "2025-06-01T12:00:00Z" {
		t.Errorf("created_at = %q, want RFC3339", records[1][4])
	}
	// A row without a parseable SKU reports an empty column.
	if records[2][1] != "" {
		t.Errorf("second row sku = %q, want empty", records[2][1])
	}
}

func TestErrorReport_NoErrors(t *testing.T) {
	store := importertest.NewMemStore()
	id := store.PutImport(importer.ImportJob{FileName: "f.csv", FilePath: "f.csv", Status: importer.StatusFinished})

	eng := importer.NewEngine(store, t.TempDir(), importer.Options{})
	var buf bytes.Buffer
	if err := eng.ErrorReport(context.Background(), id, &buf); err != nil {
		t.Fatalf("ErrorReport failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "row_number,sku,message,raw_row,created_at" {
		t.Errorf("header-only report = %q", got)
	}
}

func TestErrorReport_UnknownImport(t *testing.T) {
	eng := importer.NewEngine(importertest.NewMemStore(), t.TempDir(), importer.Options{})
	var buf bytes.Buffer
	if err := eng.ErrorReport(context.Background(), 12, &buf); !errors.Is(err, importer.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
