package web_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skuflow/skuflow/internal/config"
	"github.com/skuflow/skuflow/internal/importer"
	"github.com/skuflow/skuflow/internal/importer/importertest"
	"github.com/skuflow/skuflow/internal/upload"
	"github.com/skuflow/skuflow/internal/web"
)

type testEnv struct {
	store  *importertest.MemStore
	server *httptest.Server
	base   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	base := t.TempDir()
	store := importertest.NewMemStore()
	uploads := upload.NewStore(base, store)
	engine := importer.NewEngine(store, base, importer.Options{})

	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Storage.Dir = base
	cfg.Storage.MaxChunkSize = 1 << 20
	cfg.Import.MaxRowsPerChunk = 1000
	cfg.Rate.Enabled = false

	srv := web.NewServer(engine, uploads, store, cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{store: store, server: ts, base: base}
}

func (e *testEnv) post(t *testing.T, path string, body io.Reader, out any) *http.Response {
	t.Helper()
	resp, err := http.Post(e.server.URL+path, "application/json", body)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response from %s: %v", path, err)
		}
	}
	return resp
}

func (e *testEnv) uploadCSV(t *testing.T, content string) int64 {
	t.Helper()

	var initOut struct {
		UploadID string `json:"upload_id"`
	}
	resp := e.post(t, "/api/upload/init",
		strings.NewReader(fmt.Sprintf(`{"filename":"products.csv","fileSizeBytes":%d}`, len(content))), &initOut)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("init status = %d", resp.StatusCode)
	}

	chunkURL := fmt.Sprintf("/api/upload/chunk?upload_id=%s&offset=0", initOut.UploadID)
	resp = e.post(t, chunkURL, strings.NewReader(content), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chunk status = %d", resp.StatusCode)
	}

	var completeOut struct {
		ImportID int64 `json:"import_id"`
		FileSize int64 `json:"file_size"`
	}
	completeURL := fmt.Sprintf("/api/upload/complete?upload_id=%s&original_name=products.csv", initOut.UploadID)
	resp = e.post(t, completeURL, nil, &completeOut)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d", resp.StatusCode)
	}
	if completeOut.FileSize != int64(len(content)) {
		t.Fatalf("file_size = %d, want %d", completeOut.FileSize, len(content))
	}
	return completeOut.ImportID
}

func TestUploadAndImportFlow(t *testing.T) {
	env := newTestEnv(t)

	csv := "sku,name,price,stock\n" +
		"A,Widget,12.50,5\n" +
		",NoSku,1.00,1\n"
	importID := env.uploadCSV(t, csv)

	// Drive the import to completion.
	var run importer.ChunkResult
	resp := env.post(t, fmt.Sprintf("/api/imports/%d/run", importID), nil, &run)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run status = %d", resp.StatusCode)
	}
	if run.Created != 1 || run.Failed != 1 || !run.Done {
		t.Errorf("run = created %d, failed %d, done %v; want 1, 1, true", run.Created, run.Failed, run.Done)
	}
	if run.Errors == nil {
		t.Error("run errors field is null, want an array")
	}

	// Status reflects completion.
	var st importer.ImportStatus
	getJSON(t, env.server.URL+fmt.Sprintf("/api/imports/%d/status", importID), &st)
	if st.ProgressStatus != importer.StatusFinished {
		t.Errorf("progress_status = %q, want %q", st.ProgressStatus, importer.StatusFinished)
	}
	if st.Percentage != 100 {
		t.Errorf("percentage = %v, want 100", st.Percentage)
	}

	// Error report carries the failed row.
	resp, err := http.Get(env.server.URL + fmt.Sprintf("/api/imports/%d/errors", importID))
	if err != nil {
		t.Fatalf("GET errors failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "errors.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	report, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(report), "SKU is required.") {
		t.Errorf("report missing validation message: %q", report)
	}

	// Product listing shows the created product.
	var products struct {
		Products []struct {
			SKU   string  `json:"sku"`
			Price float64 `json:"price"`
		} `json:"products"`
	}
	getJSON(t, env.server.URL+"/api/products", &products)
	if len(products.Products) != 1 {
		t.Fatalf("products = %d, want 1", len(products.Products))
	}
	if products.Products[0].SKU != "A" || products.Products[0].Price != 12.50 {
		t.Errorf("product = %+v", products.Products[0])
	}
}

func TestMultiChunkUpload(t *testing.T) {
	env := newTestEnv(t)

	part1 := "sku,name,price,stock\n"
	part2 := "A,Widget,1.00,1\n"

	var initOut struct {
		UploadID string `json:"upload_id"`
	}
	env.post(t, "/api/upload/init",
		strings.NewReader(fmt.Sprintf(`{"filename":"p.csv","fileSizeBytes":%d}`, len(part1)+len(part2))), &initOut)

	// Ranges land out of order; the offsets reassemble them.
	resp := env.post(t, fmt.Sprintf("/api/upload/chunk?upload_id=%s&offset=%d", initOut.UploadID, len(part1)),
		strings.NewReader(part2), nil)
	resp.Body.Close()
	resp = env.post(t, fmt.Sprintf("/api/upload/chunk?upload_id=%s&offset=0", initOut.UploadID),
		strings.NewReader(part1), nil)
	resp.Body.Close()

	var completeOut struct {
		ImportID int64 `json:"import_id"`
	}
	env.post(t, fmt.Sprintf("/api/upload/complete?upload_id=%s&original_name=p.csv", initOut.UploadID), nil, &completeOut)

	var run importer.ChunkResult
	env.post(t, fmt.Sprintf("/api/imports/%d/run", completeOut.ImportID), nil, &run)
	if run.Created != 1 || !run.Done {
		t.Errorf("run = created %d, done %v; want 1, true", run.Created, run.Done)
	}
}

func TestErrorResponses(t *testing.T) {
	env := newTestEnv(t)

	// Seed a finished import for the terminal-state case.
	doneID := env.store.PutImport(importer.ImportJob{
		FileName: "done.csv", FilePath: "done.csv", Status: importer.StatusFinished,
	})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"run unknown import", "POST", "/api/imports/999/run", "", http.StatusNotFound, "NOT_FOUND"},
		{"status unknown import", "GET", "/api/imports/999/status", "", http.StatusNotFound, "NOT_FOUND"},
		{"errors unknown import", "GET", "/api/imports/999/errors", "", http.StatusNotFound, "NOT_FOUND"},
		{"run finished import", "POST", fmt.Sprintf("/api/imports/%d/run", doneID), "", http.StatusConflict, "INVALID_STATE"},
		{"run bad id", "POST", "/api/imports/zero/run", "", http.StatusBadRequest, "INVALID_REQUEST"},
		{"init bad body", "POST", "/api/upload/init", "not json", http.StatusBadRequest, "INVALID_REQUEST"},
		{"init empty filename", "POST", "/api/upload/init", `{"filename":"","fileSizeBytes":10}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"chunk unknown session", "POST", "/api/upload/chunk?upload_id=25b4e277-6d55-4b33-9e69-5ba1ea44c52f&offset=0", "data", http.StatusNotFound, "NOT_FOUND"},
		{"chunk missing offset", "POST", "/api/upload/chunk?upload_id=x", "data", http.StatusBadRequest, "INVALID_REQUEST"},
		{"complete unknown session", "POST", "/api/upload/complete?upload_id=25b4e277-6d55-4b33-9e69-5ba1ea44c52f&original_name=x.csv", "", http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, env.server.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("build request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body web.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if body.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestMalformedHeaderResponse(t *testing.T) {
	env := newTestEnv(t)
	importID := env.uploadCSV(t, "totally,wrong,columns,here\nA,Widget,1.00,1\n")

	resp := env.post(t, fmt.Sprintf("/api/imports/%d/run", importID), nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}

	// The job survives untouched: a corrected rerun path stays open.
	job, _ := env.store.Import(importID)
	if job.Status != importer.StatusPending {
		t.Errorf("status after rejection = %q, want %q", job.Status, importer.StatusPending)
	}
}

func TestEmptyChunkRejected(t *testing.T) {
	env := newTestEnv(t)

	var initOut struct {
		UploadID string `json:"upload_id"`
	}
	env.post(t, "/api/upload/init", strings.NewReader(`{"filename":"p.csv","fileSizeBytes":10}`), &initOut)

	var body web.ErrorResponse
	resp := env.post(t, fmt.Sprintf("/api/upload/chunk?upload_id=%s&offset=5", initOut.UploadID),
		strings.NewReader(""), &body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want INVALID_REQUEST", body.Code)
	}

	// The session file was never opened: still zero bytes, not extended to
	// the requested offset.
	info, err := os.Stat(filepath.Join(env.base, "tmp", initOut.UploadID+".part"))
	if err != nil {
		t.Fatalf("stat session file: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("session file size = %d, want 0", info.Size())
	}

	// The session stays usable.
	resp = env.post(t, fmt.Sprintf("/api/upload/chunk?upload_id=%s&offset=0", initOut.UploadID),
		strings.NewReader("data"), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("follow-up chunk status = %d, want 200", resp.StatusCode)
	}
}

func TestChunkBodyLimit(t *testing.T) {
	env := newTestEnv(t)

	var initOut struct {
		UploadID string `json:"upload_id"`
	}
	env.post(t, "/api/upload/init", strings.NewReader(`{"filename":"big.csv","fileSizeBytes":100}`), &initOut)

	// Body exceeding the configured chunk limit is rejected.
	big := bytes.Repeat([]byte("x"), (1<<20)+1)
	resp := env.post(t, fmt.Sprintf("/api/upload/chunk?upload_id=%s&offset=0", initOut.UploadID),
		bytes.NewReader(big), nil)
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("oversized chunk was accepted")
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
