// Package client implements the chunked upload client: it splits a file into
// fixed-size byte ranges, uploads each range with retries, finalizes the
// upload, and then drives the server-side import to completion with repeated
// run calls.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/skuflow/skuflow/internal/importer"
)

// DefaultChunkSize is the upload range size (10 MiB).
const DefaultChunkSize int64 = 10 * 1024 * 1024

// DefaultMaxRetries is how many times a failed chunk is retried.
const DefaultMaxRetries = 3

// DefaultRetryBackoff is the base delay between retries; attempt n waits
// n times this value.
const DefaultRetryBackoff = 500 * time.Millisecond

// ErrGiveUp means a chunk kept failing transiently and the retry budget ran
// out.
var ErrGiveUp = errors.New("chunk upload failed after retries")

// APIError is a non-200 response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Config tunes the uploader. Zero values select the defaults.
type Config struct {
	BaseURL      string
	ChunkSize    int64
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client

	// OnChunk, when set, is called after each successfully uploaded range.
	OnChunk func(sent, total int64)

	// OnBatch, when set, is called after each import run call.
	OnBatch func(res *importer.ChunkResult)
}

// Uploader drives the upload and import API of one server.
type Uploader struct {
	cfg  Config
	http *http.Client
}

// Summary aggregates the results of a complete upload-and-import flow.
type Summary struct {
	ImportID  int64
	FileSize  int64
	Created   int
	Updated   int
	Failed    int
	Rows      int64
	RowErrors []importer.RowFailure
}

// New creates an Uploader for the server at cfg.BaseURL.
func New(cfg Config) *Uploader {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Uploader{cfg: cfg, http: httpClient}
}

// SetChunkCallback replaces the per-chunk progress callback. Not safe to call
// while an upload is in flight.
func (u *Uploader) SetChunkCallback(fn func(sent, total int64)) {
	u.cfg.OnChunk = fn
}

// Upload runs the full flow for the file at path: init, sequential chunk
// writes, finalize, then run calls until the import reports done.
func (u *Uploader) Upload(ctx context.Context, path string) (*Summary, error) {
	sum, err := u.UploadOnly(ctx, path)
	if err != nil {
		return nil, err
	}

	run, err := u.RunAll(ctx, sum.ImportID)
	if err != nil {
		return nil, err
	}
	run.FileSize = sum.FileSize
	return run, nil
}

// UploadOnly transfers and finalizes the file without starting processing.
// The returned summary carries only ImportID and FileSize.
func (u *Uploader) UploadOnly(ctx context.Context, path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	uploadID, err := u.initSession(ctx, info.Name(), info.Size())
	if err != nil {
		return nil, err
	}

	if err := u.sendChunks(ctx, f, info.Size(), uploadID); err != nil {
		return nil, err
	}

	importID, size, err := u.complete(ctx, uploadID, info.Name())
	if err != nil {
		return nil, err
	}
	return &Summary{ImportID: importID, FileSize: size}, nil
}

// RunAll polls the run endpoint until the import is done, aggregating counts
// and collected row errors across calls. A 429 from a busy server is retried
// with the same backoff policy as chunk uploads.
func (u *Uploader) RunAll(ctx context.Context, importID int64) (*Summary, error) {
	sum := &Summary{ImportID: importID}
	busy := 0
	for {
		var res importer.ChunkResult
		err := u.postJSON(ctx, fmt.Sprintf("/api/imports/%d/run", importID), nil, &res)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests && busy < u.cfg.MaxRetries {
				busy++
				select {
				case <-time.After(time.Duration(busy) * u.cfg.RetryBackoff):
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return nil, fmt.Errorf("run import %d: %w", importID, err)
		}
		busy = 0

		sum.Created += res.Created
		sum.Updated += res.Updated
		sum.Failed += res.Failed
		sum.Rows = res.ProcessedRows
		sum.RowErrors = append(sum.RowErrors, res.Errors...)

		if u.cfg.OnBatch != nil {
			u.cfg.OnBatch(&res)
		}
		if res.Done {
			return sum, nil
		}
	}
}

// Status fetches the progress snapshot for an import.
func (u *Uploader) Status(ctx context.Context, importID int64) (*importer.ImportStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		u.cfg.BaseURL+fmt.Sprintf("/api/imports/%d/status", importID), nil)
	if err != nil {
		return nil, err
	}
	var st importer.ImportStatus
	if err := u.do(req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ErrorReport downloads the CSV error report for an import.
func (u *Uploader) ErrorReport(ctx context.Context, importID int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		u.cfg.BaseURL+fmt.Sprintf("/api/imports/%d/errors", importID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error report: %s", responseError(resp))
	}
	return io.ReadAll(resp.Body)
}

// sendChunks uploads the file as fixed-size ranges in increasing offset
// order. Each range is retried on transient failures; a 4xx aborts.
func (u *Uploader) sendChunks(ctx context.Context, f *os.File, total int64, uploadID string) error {
	buf := make([]byte, u.cfg.ChunkSize)
	var offset int64

	for offset < total {
		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read chunk at %d: %w", offset, err)
		}
		if n == 0 {
			break
		}

		if err := u.sendChunk(ctx, uploadID, offset, buf[:n]); err != nil {
			return err
		}
		offset += int64(n)
		if u.cfg.OnChunk != nil {
			u.cfg.OnChunk(offset, total)
		}
	}
	return nil
}

// sendChunk writes one range, retrying transient failures with increasing
// backoff. Retried writes target the same offset with identical bytes, which
// the server applies idempotently.
func (u *Uploader) sendChunk(ctx context.Context, uploadID string, offset int64, data []byte) error {
	q := url.Values{}
	q.Set("upload_id", uploadID)
	q.Set("offset", strconv.FormatInt(offset, 10))
	endpoint := u.cfg.BaseURL + "/api/upload/chunk?" + q.Encode()

	var lastErr error
	for attempt := 1; attempt <= u.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt-1) * u.cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := u.http.Do(req)
		if err != nil {
			lastErr = err // network fault, retry
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			resp.Body.Close()
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server fault: %s", responseError(resp))
		default:
			// Client error: retrying the same request cannot succeed.
			return fmt.Errorf("chunk at offset %d rejected: %s", offset, responseError(resp))
		}
	}
	return fmt.Errorf("%w: offset %d: %v", ErrGiveUp, offset, lastErr)
}

func (u *Uploader) initSession(ctx context.Context, filename string, size int64) (string, error) {
	var out struct {
		UploadID string `json:"upload_id"`
	}
	body := map[string]any{"filename": filename, "fileSizeBytes": size}
	if err := u.postJSON(ctx, "/api/upload/init", body, &out); err != nil {
		return "", fmt.Errorf("init upload: %w", err)
	}
	return out.UploadID, nil
}

func (u *Uploader) complete(ctx context.Context, uploadID, originalName string) (int64, int64, error) {
	q := url.Values{}
	q.Set("upload_id", uploadID)
	q.Set("original_name", originalName)

	var out struct {
		ImportID int64 `json:"import_id"`
		FileSize int64 `json:"file_size"`
	}
	if err := u.postJSON(ctx, "/api/upload/complete?"+q.Encode(), nil, &out); err != nil {
		return 0, 0, fmt.Errorf("complete upload: %w", err)
	}
	return out.ImportID, out.FileSize, nil
}

// postJSON posts an optional JSON body and decodes the JSON response into out.
func (u *Uploader) postJSON(ctx context.Context, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return u.do(req, out)
}

func (u *Uploader) do(req *http.Request, out any) error {
	resp, err := u.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: responseError(resp)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// responseError extracts the server's error message, falling back to the
// HTTP status.
func responseError(resp *http.Response) string {
	defer resp.Body.Close()
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e); err == nil && e.Error != "" {
		return fmt.Sprintf("%s (%s)", e.Error, resp.Status)
	}
	return resp.Status
}
