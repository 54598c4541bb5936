package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/skuflow/skuflow/internal/importer"
)

// importID parses the {importID} URL parameter.
func importID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "importID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// handleImportRun processes one bounded batch of the import. Clients call it
// repeatedly until the response reports done.
func (s *Server) handleImportRun(w http.ResponseWriter, r *http.Request) {
	id, ok := importID(r)
	if !ok {
		s.respondInvalid(w, r, "missing or invalid import id")
		return
	}

	res, err := s.engine.RunChunk(r.Context(), id, s.cfg.Import.MaxRowsPerChunk)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if res.Errors == nil {
		res.Errors = []importer.RowFailure{} // serialize as [] rather than null
	}
	respondJSON(w, http.StatusOK, res)
}

// handleImportStatus returns the progress snapshot for an import.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := importID(r)
	if !ok {
		s.respondInvalid(w, r, "missing or invalid import id")
		return
	}

	st, err := s.engine.Status(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// handleImportErrors streams the CSV error report as an attachment. The
// report is rendered to a buffer first so a missing import can still produce
// a clean 404.
func (s *Server) handleImportErrors(w http.ResponseWriter, r *http.Request) {
	id, ok := importID(r)
	if !ok {
		s.respondInvalid(w, r, "missing or invalid import id")
		return
	}

	var buf bytes.Buffer
	if err := s.engine.ErrorReport(r.Context(), id, &buf); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("import-%d-errors.csv", id)))
	w.Write(buf.Bytes())
}
