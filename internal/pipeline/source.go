package pipeline

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/doctree"
)

// ErrNoDocument is returned by a Source that has nothing to load yet.
var ErrNoDocument = errors.New("no document uploaded")

// Document is what the host hands the cache for one extraction pass.
// Fragments, when present, replace parsing: the host has already positioned
// every section. Annotations, when present, are host-computed records used
// instead of extracting them from Data.
type Document struct {
	Filename    string
	Title       string
	Data        []byte
	Fragments   []doctree.Fragment
	Annotations *annotation.Set
}

// Source loads the current state of the document being reviewed.
type Source interface {
	Load(ctx context.Context) (Document, error)
}

// MemorySource holds the most recently uploaded document.
type MemorySource struct {
	mu  sync.Mutex
	doc *Document
}

// Put replaces the held document.
func (s *MemorySource) Put(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = &doc
}

func (s *MemorySource) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return Document{}, ErrNoDocument
	}
	doc := *s.doc
	if doc.Annotations != nil {
		set := doc.Annotations.Clone()
		doc.Annotations = &set
	}
	return doc, nil
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
