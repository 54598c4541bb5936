// Package upload implements the chunked upload store: per-session temporary
// files that accept out-of-order byte-range writes and are finalized into
// permanent storage as the source file of a new import job.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrSessionNotFound means the session's temporary file does not exist,
// either because the session id is unknown or the file was already finalized.
var ErrSessionNotFound = errors.New("upload session not found")

// Ledger creates the durable import record when an upload is finalized.
// Implemented by the database store.
type Ledger interface {
	CreateImport(ctx context.Context, fileName, filePath string, sizeBytes int64) (int64, error)
}

// Store manages chunked upload sessions on the local filesystem.
//
// Layout under the storage base directory:
//
//	tmp/<session>.part   in-progress uploads
//	uploads/<name>.csv   finalized source files
type Store struct {
	tmpDir     string
	uploadsDir string
	ledger     Ledger
}

// NewStore creates a chunk store rooted at baseDir. The tmp and uploads
// directories are created on demand.
func NewStore(baseDir string, ledger Ledger) *Store {
	return &Store{
		tmpDir:     filepath.Join(baseDir, "tmp"),
		uploadsDir: filepath.Join(baseDir, "uploads"),
		ledger:     ledger,
	}
}

// Init allocates a new session with an empty temporary file and returns its
// opaque id.
func (s *Store) Init(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	sessionID := uuid.New().String()
	f, err := os.Create(s.partPath(sessionID))
	if err != nil {
		return "", fmt.Errorf("create session file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close session file: %w", err)
	}

	slog.Debug("upload session created", "upload_id", sessionID)
	return sessionID, nil
}

// WriteChunk writes the bytes from r into the session file at offset and
// returns the count written. Retrying a range with identical content simply
// overwrites the same region, so client retries are safe.
func (s *Store) WriteChunk(ctx context.Context, sessionID string, offset int64, r io.Reader) (int64, error) {
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrSessionNotFound
		}
		return 0, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek to offset %d: %w", offset, err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		return n, fmt.Errorf("write chunk at offset %d: %w", offset, err)
	}
	return n, nil
}

// Finalize relocates the completed session file into permanent storage under
// a generated unique name, reads its final size from disk, and creates the
// import job. The session is consumed: further writes report not found.
func (s *Store) Finalize(ctx context.Context, sessionID, displayName string) (int64, int64, error) {
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return 0, 0, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return 0, 0, ErrSessionNotFound
		}
		return 0, 0, fmt.Errorf("stat session file: %w", err)
	}

	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		return 0, 0, fmt.Errorf("create uploads dir: %w", err)
	}

	finalName := "import_" + uuid.New().String() + ".csv"
	finalPath := filepath.Join(s.uploadsDir, finalName)
	if err := os.Rename(path, finalPath); err != nil {
		return 0, 0, fmt.Errorf("move upload into storage: %w", err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return 0, 0, fmt.Errorf("stat final file: %w", err)
	}

	// Size is read from disk after the move, never trusted from the client.
	importID, err := s.ledger.CreateImport(ctx, displayName, "uploads/"+finalName, info.Size())
	if err != nil {
		return 0, 0, fmt.Errorf("create import record: %w", err)
	}

	slog.Info("upload finalized",
		"upload_id", sessionID,
		"import_id", importID,
		"file_name", displayName,
		"size_bytes", info.Size(),
	)
	return importID, info.Size(), nil
}

// sessionPath validates the session id and returns its part-file path.
// Ids are always UUIDs we generated; anything else is rejected so a crafted
// id cannot address files outside the tmp directory.
func (s *Store) sessionPath(sessionID string) (string, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return "", ErrSessionNotFound
	}
	return s.partPath(sessionID), nil
}

func (s *Store) partPath(sessionID string) string {
	return filepath.Join(s.tmpDir, sessionID+".part")
}
