package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/parser"
	"github.com/dgallion1/annoscope/internal/pipeline"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.registry.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.registry.Delete(id); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.scopes.Delete(r.Context(), id); err != nil {
		s.log.Warn("delete scope failed", "session_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload replaces the session's document. An optional "annotations"
// form field carries host-computed records as JSON for formats that do not
// mark annotations up themselves.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	doc := pipeline.Document{Filename: filename, Title: r.FormValue("title"), Data: data}
	if raw := r.FormValue("annotations"); raw != "" {
		var set annotation.Set
		if err := json.Unmarshal([]byte(raw), &set); err != nil {
			jsonError(w, "invalid annotations: "+err.Error(), http.StatusBadRequest)
			return
		}
		doc.Annotations = &set
	}

	sess.Upload(doc)
	s.log.Info("document uploaded",
		"session_id", sess.ID,
		"filename", filename,
		"bytes", len(data),
		"host_annotations", doc.Annotations != nil,
	)
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

// session resolves the {sessionID} URL parameter, writing a 404 when the
// session is unknown or expired.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	sess, err := s.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
