package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/doctree"
	"github.com/dgallion1/annoscope/internal/pipeline"
	"github.com/dgallion1/annoscope/internal/scope"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeError maps domain errors to HTTP statuses. Extraction failures leave
// the stored snapshot intact, so they are reported as upstream failures the
// caller may retry.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		ve  *scope.ValidationError
		sce *doctree.StructuralConsistencyError
		ef  *annotation.ExtractionFailure
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": ve.Message, "code": ve.Code})
	case errors.As(err, &sce):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":         sce.Error(),
			"code":          "STRUCTURAL_INCONSISTENCY",
			"sectionNumber": sce.SectionNumber,
		})
	case errors.Is(err, pipeline.ErrSessionNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, pipeline.ErrNoDocument):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pipeline.ErrRefreshInProgress):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pipeline.ErrNotConfigured):
		jsonError(w, err.Error(), http.StatusNotImplemented)
	case errors.As(err, &ef):
		s.log.Warn("extraction failed", "stage", ef.Stage, "error", ef.Err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": ef.Error(), "stage": ef.Stage})
	default:
		s.log.Error("request failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
