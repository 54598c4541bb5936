package web

// errors.go maps domain errors onto HTTP responses. The technical error is
// logged server-side with the request id; clients receive a short message
// and a stable code.

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/skuflow/skuflow/internal/importer"
	"github.com/skuflow/skuflow/internal/logging"
	"github.com/skuflow/skuflow/internal/upload"
)

// ErrorResponse is the JSON body for every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError classifies err, logs it, and writes the response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
		"request_id", chimw.GetReqID(r.Context()),
	)

	writeError(w, status, code, err.Error())
}

// respondInvalid writes a 400 for malformed caller input.
func (s *Server) respondInvalid(w http.ResponseWriter, r *http.Request, msg string) {
	logging.FromContext(r.Context()).Warn("invalid request",
		"path", r.URL.Path,
		"error", msg,
	)
	writeError(w, http.StatusBadRequest, "INVALID_REQUEST", msg)
}

// classify maps domain sentinels to status codes. Anything unrecognized is an
// unexpected processing fault: the chunk transaction was rolled back, so a
// 500 tells the caller to retry the same call.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, importer.ErrNotFound), errors.Is(err, upload.ErrSessionNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, importer.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, importer.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, importer.ErrMalformedHeader):
		return http.StatusUnprocessableEntity, "MALFORMED_INPUT"
	case errors.Is(err, importer.ErrBusy):
		return http.StatusTooManyRequests, "TOO_MANY_RUNS"
	default:
		return http.StatusInternalServerError, "PROCESSING_ERROR"
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Code: code})
}

// respondJSON writes a success payload.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
