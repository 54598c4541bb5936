package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

// initRequest is the body of POST /api/upload/init.
type initRequest struct {
	Filename      string `json:"filename"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
}

// handleUploadInit allocates a new upload session.
func (s *Server) handleUploadInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondInvalid(w, r, "invalid JSON body")
		return
	}
	if req.Filename == "" || req.FileSizeBytes <= 0 {
		s.respondInvalid(w, r, "invalid filename or file size")
		return
	}

	uploadID, err := s.uploads.Init(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"upload_id": uploadID})
}

// handleUploadChunk appends a byte range to an in-progress upload. The chunk
// is the raw request body; upload_id and offset come from query parameters.
func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	uploadID := r.URL.Query().Get("upload_id")
	offsetStr := r.URL.Query().Get("offset")

	offset, err := strconv.ParseInt(offsetStr, 10, 64)
	if uploadID == "" || offsetStr == "" || err != nil || offset < 0 {
		s.respondInvalid(w, r, "invalid upload ID or offset")
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.Storage.MaxChunkSize)

	// Reject empty bodies before the store touches the session file.
	var first [1]byte
	nr, _ := body.Read(first[:])
	if nr == 0 {
		s.respondInvalid(w, r, "empty chunk")
		return
	}

	n, err := s.uploads.WriteChunk(r.Context(), uploadID, offset,
		io.MultiReader(bytes.NewReader(first[:nr]), body))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"bytes_written": n,
		"offset":        offset,
		"upload_id":     uploadID,
	})
}

// handleUploadComplete finalizes the session into permanent storage and
// creates the import job.
func (s *Server) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	uploadID := r.URL.Query().Get("upload_id")
	originalName := r.URL.Query().Get("original_name")
	if uploadID == "" || originalName == "" {
		s.respondInvalid(w, r, "missing upload_id or original_name")
		return
	}

	importID, size, err := s.uploads.Finalize(r.Context(), uploadID, originalName)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"import_id": importID,
		"file_size": size,
		"message":   "Upload complete",
	})
}
