package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// fakeLedger records CreateImport calls without a database.
type fakeLedger struct {
	fileName  string
	filePath  string
	sizeBytes int64
	nextID    int64
	err       error
}

func (l *fakeLedger) CreateImport(ctx context.Context, fileName, filePath string, sizeBytes int64) (int64, error) {
	if l.err != nil {
		return 0, l.err
	}
	l.fileName = fileName
	l.filePath = filePath
	l.sizeBytes = sizeBytes
	l.nextID++
	return l.nextID, nil
}

func TestInit_CreatesEmptySessionFile(t *testing.T) {
	base := t.TempDir()
	store := NewStore(base, &fakeLedger{})

	id, err := store.Init(context.Background())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("session id %q is not a UUID: %v", id, err)
	}

	info, err := os.Stat(filepath.Join(base, "tmp", id+".part"))
	if err != nil {
		t.Fatalf("session file missing: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("fresh session file size = %d, want 0", info.Size())
	}
}

func TestWriteChunk_SequentialAndIdempotent(t *testing.T) {
	base := t.TempDir()
	store := NewStore(base, &fakeLedger{})
	ctx := context.Background()

	id, err := store.Init(ctx)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	n, err := store.WriteChunk(ctx, id, 0, strings.NewReader("hello "))
	if err != nil {
		t.Fatalf("first chunk failed: %v", err)
	}
	if n != 6 {
		t.Errorf("first chunk wrote %d bytes, want 6", n)
	}
	if _, err := store.WriteChunk(ctx, id, 6, strings.NewReader("world")); err != nil {
		t.Fatalf("second chunk failed: %v", err)
	}

	// A retried range overwrites the same region without growing the file.
	if _, err := store.WriteChunk(ctx, id, 6, strings.NewReader("world")); err != nil {
		t.Fatalf("retried chunk failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(base, "tmp", id+".part"))
	if err != nil {
		t.Fatalf("read session file: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("session file = %q, want %q", data, "hello world")
	}
}

func TestWriteChunk_OutOfOrder(t *testing.T) {
	base := t.TempDir()
	store := NewStore(base, &fakeLedger{})
	ctx := context.Background()

	id, err := store.Init(ctx)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	// Later range lands first; the gap is zero-filled until the earlier
	// range arrives.
	if _, err := store.WriteChunk(ctx, id, 5, strings.NewReader("world")); err != nil {
		t.Fatalf("out-of-order chunk failed: %v", err)
	}
	if _, err := store.WriteChunk(ctx, id, 0, strings.NewReader("hello")); err != nil {
		t.Fatalf("fill-in chunk failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(base, "tmp", id+".part"))
	if err != nil {
		t.Fatalf("read session file: %v", err)
	}
	if string(data) != "helloworld" {
		t.Errorf("session file = %q, want %q", data, "helloworld")
	}
}

func TestWriteChunk_UnknownSession(t *testing.T) {
	store := NewStore(t.TempDir(), &fakeLedger{})

	_, err := store.WriteChunk(context.Background(), uuid.New().String(), 0, strings.NewReader("x"))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestWriteChunk_RejectsNonUUIDSession(t *testing.T) {
	base := t.TempDir()
	store := NewStore(base, &fakeLedger{})

	// A crafted id must not address files outside tmp/.
	_, err := store.WriteChunk(context.Background(), "../../etc/passwd", 0, strings.NewReader("x"))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestFinalize(t *testing.T) {
	base := t.TempDir()
	ledger := &fakeLedger{}
	store := NewStore(base, ledger)
	ctx := context.Background()

	id, err := store.Init(ctx)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	content := "sku,name,price,stock\nA,Widget,1.00,1\n"
	if _, err := store.WriteChunk(ctx, id, 0, strings.NewReader(content)); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	importID, size, err := store.Finalize(ctx, id, "products.csv")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if importID != 1 {
		t.Errorf("import id = %d, want 1", importID)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}

	if ledger.fileName != "products.csv" {
		t.Errorf("ledger file name = %q, want %q", ledger.fileName, "products.csv")
	}
	if !strings.HasPrefix(ledger.filePath, "uploads/import_") || !strings.HasSuffix(ledger.filePath, ".csv") {
		t.Errorf("ledger file path = %q, want uploads/import_<uuid>.csv", ledger.filePath)
	}
	if ledger.sizeBytes != int64(len(content)) {
		t.Errorf("ledger size = %d, want %d", ledger.sizeBytes, len(content))
	}

	// The stored file content matches what was uploaded.
	data, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(ledger.filePath)))
	if err != nil {
		t.Fatalf("read finalized file: %v", err)
	}
	if string(data) != content {
		t.Errorf("finalized content = %q, want %q", data, content)
	}

	// The session is consumed.
	if _, err := store.WriteChunk(ctx, id, 0, strings.NewReader("x")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("write after finalize err = %v, want ErrSessionNotFound", err)
	}
	if _, _, err := store.Finalize(ctx, id, "products.csv"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second finalize err = %v, want ErrSessionNotFound", err)
	}
}

func TestFinalize_UnknownSession(t *testing.T) {
	store := NewStore(t.TempDir(), &fakeLedger{})

	_, _, err := store.Finalize(context.Background(), uuid.New().String(), "x.csv")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}
