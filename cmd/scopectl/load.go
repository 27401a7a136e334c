package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/parser"
	"github.com/dgallion1/annoscope/internal/pipeline"
	"github.com/dgallion1/annoscope/internal/scope"
)

// load runs one extraction pass over path through the same cache the
// server uses.
func (c *cli) load(ctx context.Context, path string, stderr io.Writer) (*pipeline.OrchestrationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := pipeline.Document{Filename: filepath.Base(path), Data: data}
	if p := c.v.GetString("annotations"); p != "" {
		var set annotation.Set
		if err := readJSON(p, &set); err != nil {
			return nil, fmt.Errorf("annotations: %w", err)
		}
		doc.Annotations = &set
	}

	src := &pipeline.MemorySource{}
	src.Put(doc)
	cache := pipeline.NewCache(pipeline.CacheConfig{
		Source: src,
		Parser: parser.Options{PDFFallbackPdftotext: c.v.GetBool("pdf-fallback")},
		Log:    c.logger(stderr).With("file", path),
	})
	return cache.GetOrchestrationResult(ctx, pipeline.Options{})
}

func readScope(path string) (scope.AnnotationScope, error) {
	if path == "" {
		return scope.Default(), nil
	}
	var sc scope.AnnotationScope
	if err := readJSON(path, &sc); err != nil {
		return sc, fmt.Errorf("scope: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return sc, fmt.Errorf("scope: %w", err)
	}
	return sc, nil
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}
