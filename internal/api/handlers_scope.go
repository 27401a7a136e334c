package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/annoscope/internal/pipeline"
	"github.com/dgallion1/annoscope/internal/scope"
	"github.com/dgallion1/annoscope/internal/scopestore"
)

func forceParam(r *http.Request) pipeline.Options {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	return pipeline.Options{ForceRefresh: force}
}

func (s *Server) handleOrchestration(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := sess.Cache().GetOrchestrationResult(r.Context(), forceParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClassification(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := sess.Cache().GetClassificationResult(r.Context(), forceParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := sess.Cache().GetPositions(r.Context(), forceParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Cache().Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var sel scope.Selection
	if !decodeBody(w, r, &sel) {
		return
	}
	orch, err := sess.Cache().GetOrchestrationResult(r.Context(), pipeline.Options{})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sel.All {
		sel.Start, sel.End = 0, orch.Structure.Len()
	}
	sel = sel.Normalize()
	writeJSON(w, http.StatusOK, map[string]any{
		"sections": scope.MapSelectionToSections(sel.Start, sel.End, orch.Structure),
	})
}

// rangeRequest selects annotations either by a text selection or by
// section numbers. SectionNumbers wins when both are given.
type rangeRequest struct {
	Label          string           `json:"label"`
	Selection      *scope.Selection `json:"selection,omitempty"`
	SectionNumbers []string         `json:"sectionNumbers,omitempty"`
	Mode           scope.Mode       `json:"mode,omitempty"`
}

func (req rangeRequest) validate() error {
	if req.Selection == nil && len(req.SectionNumbers) == 0 {
		return errors.New("selection or sectionNumbers is required")
	}
	if req.Mode != "" && !req.Mode.Valid() {
		return fmt.Errorf("unknown scope mode %q", req.Mode)
	}
	return nil
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req rangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	orch, err := sess.Cache().GetOrchestrationResult(r.Context(), pipeline.Options{})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.SectionNumbers) > 0 {
		writeJSON(w, http.StatusOK, scope.FindAnnotationsInSections(req.SectionNumbers, orch.Annotations))
		return
	}
	writeJSON(w, http.StatusOK, scope.FindAnnotationsInSelection(*req.Selection, orch.Annotations, orch.Structure))
}

func (s *Server) handleGetScope(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sc, err := scopestore.GetOrDefault(r.Context(), s.scopes, sess.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handlePutScope(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var sc scope.AnnotationScope
	if !decodeBody(w, r, &sc) {
		return
	}
	if err := sc.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer sess.LockScope()()
	rec, err := s.scopes.Put(r.Context(), sess.ID, sc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleAddRange matches a selection against the current snapshot and adds
// the result to the stored scope as a new named range.
func (s *Server) handleAddRange(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req rangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	orch, err := sess.Cache().GetOrchestrationResult(ctx, pipeline.Options{})
	if err != nil {
		s.writeError(w, err)
		return
	}

	defer sess.LockScope()()
	sc, err := scopestore.GetOrDefault(ctx, s.scopes, sess.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var rng scope.SelectionRange
	if len(req.SectionNumbers) > 0 {
		rng = scope.NewSectionRange(req.Label, req.SectionNumbers, orch.Annotations)
	} else {
		rng = scope.NewSelectionRange(req.Label, *req.Selection, orch.Annotations, orch.Structure)
	}
	sc.Ranges = append(sc.Ranges, rng)
	if req.Mode != "" {
		sc.Mode = req.Mode
	}

	rec, err := s.scopes.Put(ctx, sess.ID, sc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("range added",
		"session_id", sess.ID,
		"range_id", rng.ID,
		"label", rng.Label,
		"annotations", rng.AnnotationCounts.Total(),
	)
	writeJSON(w, http.StatusCreated, map[string]any{"range": rng, "scope": rec.Scope})
}

func (s *Server) handleDeleteRange(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	defer sess.LockScope()()
	sc, err := scopestore.GetOrDefault(ctx, s.scopes, sess.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id := chi.URLParam(r, "rangeID")
	kept := sc.Ranges[:0]
	for _, rng := range sc.Ranges {
		if rng.ID != id {
			kept = append(kept, rng)
		}
	}
	if len(kept) == len(sc.Ranges) {
		jsonError(w, "range not found", http.StatusNotFound)
		return
	}
	sc.Ranges = kept
	rec, err := s.scopes.Put(ctx, sess.ID, sc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Scope)
}

// handleBundle filters the snapshot for generation. The request body may
// carry a scope; without one the stored scope is used.
func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	sc, err := scopestore.GetOrDefault(ctx, s.scopes, sess.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var override *scope.AnnotationScope
	if !decodeOptionalBody(w, r, &override) {
		return
	}
	if override != nil {
		if err := override.Validate(); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		sc = *override
	}

	b, err := sess.Cache().Bundle(ctx, sc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleRefresh re-extracts the document, reconciles the stored scope
// against the new annotations and stores the reconciled scope. The scope
// stays locked from read to write so range edits wait for the refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.Cache().Refreshing() {
		s.writeError(w, pipeline.ErrRefreshInProgress)
		return
	}
	ctx := r.Context()
	defer sess.LockScope()()
	sc, err := scopestore.GetOrDefault(ctx, s.scopes, sess.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := sess.Cache().RefreshWithReconciliation(ctx, sc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.scopes.Put(ctx, sess.ID, res.Reconciliation.ReconciledScope); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body and leaves v untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
