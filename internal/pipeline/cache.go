package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/classify"
	"github.com/dgallion1/annoscope/internal/doctree"
	"github.com/dgallion1/annoscope/internal/markup"
	"github.com/dgallion1/annoscope/internal/parser"
	"github.com/dgallion1/annoscope/internal/positions"
	"github.com/dgallion1/annoscope/internal/reconcile"
	"github.com/dgallion1/annoscope/internal/scope"
)

var (
	// ErrRefreshInProgress rejects a refresh while another one is running.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrNotConfigured is returned when an optional backend is missing.
	ErrNotConfigured = errors.New("backend not configured")
)

// Classifier labels an annotation snapshot.
type Classifier interface {
	Classify(ctx context.Context, docTitle string, set *annotation.Set) (*classify.Result, error)
}

// PositionExtractor asks the backend for the positions a document takes.
type PositionExtractor interface {
	Extract(ctx context.Context, s *doctree.Structure) (*positions.Result, error)
}

// Options control a single cache read.
type Options struct {
	ForceRefresh bool
}

// OrchestrationResult is one parse+extract snapshot. Generation is zero when
// the result was computed but not stored because the cache was invalidated
// while it ran.
type OrchestrationResult struct {
	Title       string             `json:"title"`
	Filename    string             `json:"filename,omitempty"`
	ContentHash string             `json:"contentHash"`
	Structure   *doctree.Structure `json:"structure"`
	Annotations annotation.Set     `json:"annotations"`
	Counts      annotation.Counts  `json:"counts"`
	Generation  uint64             `json:"generation"`
	ExtractedAt time.Time          `json:"extractedAt"`
}

// ClassificationResult is a classification tied to the snapshot it labels.
type ClassificationResult struct {
	*classify.Result
	Generation   uint64    `json:"generation"`
	ContentHash  string    `json:"contentHash"`
	ClassifiedAt time.Time `json:"classifiedAt"`
}

// PositionsResult is the positions for one snapshot.
type PositionsResult struct {
	*positions.Result
	Generation  uint64    `json:"generation"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// RefreshResult pairs a fresh snapshot with the reconciled scope.
type RefreshResult struct {
	Orchestration  *OrchestrationResult `json:"orchestration"`
	Reconciliation *reconcile.Result    `json:"reconciliation"`
	Message        string               `json:"message"`
}

// Bundle is the filtered annotation set handed to generation.
type Bundle struct {
	Title           string                    `json:"title"`
	ContentHash     string                    `json:"contentHash"`
	Filtered        scope.FilteredAnnotations `json:"filtered"`
	Classifications []classify.Classification `json:"classifications,omitempty"`
}

// CacheConfig wires a Cache to its collaborators. Classifier, Positions,
// Extractor, Metrics and OnStatus are optional.
type CacheConfig struct {
	Source     Source
	Parser     parser.Options
	Extractor  annotation.Extractor
	Classifier Classifier
	Positions  PositionExtractor
	Metrics    *Metrics
	Log        *slog.Logger
	OnStatus   func(status SessionStatus, phase string)
}

// Cache owns one session's annotation snapshot and everything derived from
// it. At most one computation of each kind runs at a time; concurrent
// callers share its result. Results of computations that were overtaken by
// Invalidate or by a newer snapshot are returned to their callers but not
// stored.
type Cache struct {
	cfg   CacheConfig
	log   *slog.Logger
	group singleflight.Group
	now   func() time.Time

	mu             sync.Mutex
	epoch          uint64
	snapshot       *OrchestrationResult
	classification *ClassificationResult
	positions      *PositionsResult

	refreshing atomic.Bool
}

func NewCache(cfg CacheConfig) *Cache {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	return &Cache{cfg: cfg, log: log, now: time.Now}
}

// GetOrchestrationResult returns the stored snapshot, computing it when
// there is none or when ForceRefresh is set.
func (c *Cache) GetOrchestrationResult(ctx context.Context, opts Options) (*OrchestrationResult, error) {
	if !opts.ForceRefresh {
		c.mu.Lock()
		snap := c.snapshot
		c.mu.Unlock()
		if snap != nil {
			return snap.clone(), nil
		}
	}
	res, err := c.orchestrate(ctx)
	if err != nil {
		return nil, err
	}
	return res.clone(), nil
}

func (c *Cache) orchestrate(ctx context.Context) (*OrchestrationResult, error) {
	v, err, shared := c.group.Do("orchestrate", func() (any, error) {
		c.mu.Lock()
		epoch := c.epoch
		c.mu.Unlock()

		c.status(StatusExtracting, "parsing and extracting")
		start := time.Now()
		res, err := c.extract(ctx)
		c.observe("orchestrate", start, err)
		if err != nil {
			c.status(StatusFailed, "extraction failed")
			return nil, err
		}

		c.mu.Lock()
		if c.epoch == epoch {
			c.epoch++
			res.Generation = c.epoch
			c.snapshot = res
			c.classification = nil
			c.positions = nil
		}
		c.mu.Unlock()

		if res.Generation == 0 {
			c.cfg.Metrics.Discarded.WithLabelValues("orchestrate").Inc()
			c.log.Info("discarded extraction overtaken by invalidate")
		} else {
			c.status(StatusReady, "extracted")
		}
		c.log.Info("extraction complete",
			"generation", res.Generation,
			"sections", len(res.Structure.Sections()),
			"annotations", res.Counts.Total(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return res, nil
	})
	if shared {
		c.cfg.Metrics.SharedWaits.WithLabelValues("orchestrate").Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*OrchestrationResult), nil
}

// extract loads, parses and extracts one snapshot.
func (c *Cache) extract(ctx context.Context) (*OrchestrationResult, error) {
	doc, err := c.cfg.Source.Load(ctx)
	if err != nil {
		return nil, &annotation.ExtractionFailure{Stage: "load", Err: err}
	}

	var s *doctree.Structure
	if len(doc.Fragments) > 0 {
		s, err = doctree.FromFragments(doc.Title, doc.Fragments)
		if err != nil {
			return nil, fmt.Errorf("assemble sections: %w", err)
		}
	} else {
		p, err := parser.ForFile(doc.Filename, c.cfg.Parser)
		if err != nil {
			return nil, &annotation.ExtractionFailure{Stage: "parse", Err: err}
		}
		parsed, err := p.Parse(bytes.NewReader(doc.Data), doc.Filename)
		if err != nil {
			return nil, &annotation.ExtractionFailure{Stage: "parse", Err: err}
		}
		title := doc.Title
		if title == "" {
			title = parsed.Title
		}
		s, err = doctree.Build(title, parsed.Roots)
		if err != nil {
			return nil, fmt.Errorf("build sections: %w", err)
		}
	}

	set, err := annotation.ExtractAll(ctx, c.extractorFor(doc), doc.Data)
	if err != nil {
		return nil, err
	}
	if err := checkSections(*set, s); err != nil {
		return nil, err
	}

	return &OrchestrationResult{
		Title:       s.Title,
		Filename:    doc.Filename,
		ContentHash: ContentHashHex(doc.Data),
		Structure:   s,
		Annotations: *set,
		Counts:      set.Counts(),
		ExtractedAt: c.now(),
	}, nil
}

// extractorFor picks the configured extractor, then host-supplied records,
// then HTML redline markup. Other formats carry no annotations of their own.
func (c *Cache) extractorFor(doc Document) annotation.Extractor {
	switch {
	case c.cfg.Extractor != nil:
		return c.cfg.Extractor
	case doc.Annotations != nil:
		return annotation.StaticExtractor{Records: *doc.Annotations}
	}
	switch strings.ToLower(filepath.Ext(doc.Filename)) {
	case ".html", ".htm":
		return markup.Extractor{}
	}
	return annotation.StaticExtractor{}
}

// checkSections rejects records that point at sections the structure does
// not have.
func checkSections(set annotation.Set, s *doctree.Structure) error {
	for _, a := range set.All() {
		if _, ok := s.Section(a.Section()); !ok {
			return &doctree.StructuralConsistencyError{
				SectionNumber: a.Section(),
				Reason:        fmt.Sprintf("%s refers to a section the document does not have", a.Ref()),
			}
		}
	}
	return nil
}

// GetClassificationResult classifies the current snapshot. Extraction
// always completes first, and the result returned always belongs to the
// snapshot the caller read. A caller that joins a classification started
// for an older snapshot waits for it and then classifies again.
func (c *Cache) GetClassificationResult(ctx context.Context, opts Options) (*ClassificationResult, error) {
	if c.cfg.Classifier == nil {
		return nil, fmt.Errorf("classification: %w", ErrNotConfigured)
	}
	for {
		orch, err := c.GetOrchestrationResult(ctx, Options{})
		if err != nil {
			return nil, err
		}
		if !opts.ForceRefresh {
			c.mu.Lock()
			cl := c.classification
			c.mu.Unlock()
			if cl != nil && cl.Generation == orch.Generation {
				return cl, nil
			}
		}

		v, err, shared := c.group.Do("classify", func() (any, error) {
			return c.classify(ctx, orch)
		})
		if shared {
			c.cfg.Metrics.SharedWaits.WithLabelValues("classify").Inc()
		}
		if err != nil {
			return nil, err
		}
		out := v.(*ClassificationResult)
		if out.Generation == orch.Generation {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// joined a classification of an older snapshot
		opts.ForceRefresh = false
	}
}

func (c *Cache) classify(ctx context.Context, snap *OrchestrationResult) (*ClassificationResult, error) {
	start := time.Now()
	set := snap.Annotations.Clone()
	res, err := c.cfg.Classifier.Classify(ctx, snap.Title, &set)
	c.observe("classify", start, err)
	if err != nil {
		return nil, err
	}
	out := &ClassificationResult{
		Result:       res,
		Generation:   snap.Generation,
		ContentHash:  snap.ContentHash,
		ClassifiedAt: c.now(),
	}

	c.mu.Lock()
	stored := c.current(snap.Generation)
	if stored {
		c.classification = out
	}
	c.mu.Unlock()
	if !stored {
		c.cfg.Metrics.Discarded.WithLabelValues("classify").Inc()
	}
	return out, nil
}

// GetPositions returns the backend positions for the current snapshot,
// with the same generation guarantee as GetClassificationResult.
func (c *Cache) GetPositions(ctx context.Context, opts Options) (*PositionsResult, error) {
	if c.cfg.Positions == nil {
		return nil, fmt.Errorf("positions: %w", ErrNotConfigured)
	}
	for {
		orch, err := c.GetOrchestrationResult(ctx, Options{})
		if err != nil {
			return nil, err
		}
		if !opts.ForceRefresh {
			c.mu.Lock()
			p := c.positions
			c.mu.Unlock()
			if p != nil && p.Generation == orch.Generation {
				return p, nil
			}
		}

		v, err, shared := c.group.Do("positions", func() (any, error) {
			return c.extractPositions(ctx, orch)
		})
		if shared {
			c.cfg.Metrics.SharedWaits.WithLabelValues("positions").Inc()
		}
		if err != nil {
			return nil, err
		}
		out := v.(*PositionsResult)
		if out.Generation == orch.Generation {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opts.ForceRefresh = false
	}
}

func (c *Cache) extractPositions(ctx context.Context, snap *OrchestrationResult) (*PositionsResult, error) {
	start := time.Now()
	res, err := c.cfg.Positions.Extract(ctx, snap.Structure)
	c.observe("positions", start, err)
	if err != nil {
		return nil, err
	}
	out := &PositionsResult{Result: res, Generation: snap.Generation, ExtractedAt: c.now()}

	c.mu.Lock()
	stored := c.current(snap.Generation)
	if stored {
		c.positions = out
	}
	c.mu.Unlock()
	if !stored {
		c.cfg.Metrics.Discarded.WithLabelValues("positions").Inc()
	}
	return out, nil
}

// current reports whether gen is the stored snapshot. c.mu must be held.
func (c *Cache) current(gen uint64) bool {
	return gen != 0 && c.snapshot != nil && c.snapshot.Generation == gen
}

// RefreshWithReconciliation re-extracts the document and reconciles oldScope
// against the new snapshot. The snapshot stored before the call is the
// baseline for annotations that appeared. A failed extraction leaves the
// stored snapshot and the caller's scope untouched.
func (c *Cache) RefreshWithReconciliation(ctx context.Context, oldScope scope.AnnotationScope) (*RefreshResult, error) {
	if !c.refreshing.CompareAndSwap(false, true) {
		c.cfg.Metrics.RefreshBlocked.Inc()
		return nil, ErrRefreshInProgress
	}
	defer c.refreshing.Store(false)

	c.mu.Lock()
	var oldSet *annotation.Set
	if c.snapshot != nil {
		set := c.snapshot.Annotations.Clone()
		oldSet = &set
	}
	c.mu.Unlock()

	orch, err := c.orchestrate(ctx)
	if err != nil {
		return nil, err
	}
	newSet := orch.Annotations.Clone()
	rec, err := reconcile.Reconcile(oldScope.Clone(), oldSet, &newSet)
	if err != nil {
		return nil, err
	}

	c.cfg.Metrics.Reconciled.WithLabelValues("preserved").Add(float64(rec.Summary.Preserved.Total()))
	c.cfg.Metrics.Reconciled.WithLabelValues("removed").Add(float64(rec.Summary.Removed.Counts().Total()))
	c.log.Info("reconciled scope",
		"generation", orch.Generation,
		"ranges_before", len(oldScope.Ranges),
		"ranges_after", len(rec.ReconciledScope.Ranges),
		"preserved", rec.Summary.Preserved.Total(),
		"removed", rec.Summary.Removed.Counts().Total(),
		"appeared", rec.Summary.Appeared.Total(),
	)
	return &RefreshResult{
		Orchestration:  orch.clone(),
		Reconciliation: rec,
		Message:        rec.Summary.Describe(),
	}, nil
}

// Bundle filters the current snapshot by sc for generation. Cached
// classifications of the surviving annotations ride along; Bundle never
// starts a classification itself.
func (c *Cache) Bundle(ctx context.Context, sc scope.AnnotationScope) (*Bundle, error) {
	orch, err := c.GetOrchestrationResult(ctx, Options{})
	if err != nil {
		return nil, err
	}
	filtered, err := scope.ForGeneration(orch.Annotations, sc)
	if err != nil {
		return nil, err
	}
	b := &Bundle{Title: orch.Title, ContentHash: orch.ContentHash, Filtered: filtered}

	c.mu.Lock()
	cl := c.classification
	c.mu.Unlock()
	if cl != nil && cl.Generation == orch.Generation {
		keep := make(map[annotation.Ref]bool)
		for _, a := range filtered.Annotations.All() {
			keep[a.Ref()] = true
		}
		for _, x := range cl.Classifications {
			if keep[x.Ref] {
				b.Classifications = append(b.Classifications, x)
			}
		}
	}
	return b, nil
}

// Invalidate drops the snapshot and all derived data. Computations already
// running finish, but their results are not stored.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.snapshot = nil
	c.classification = nil
	c.positions = nil
	c.log.Info("cache invalidated")
}

// Refreshing reports whether a refresh is running.
func (c *Cache) Refreshing() bool {
	return c.refreshing.Load()
}

func (c *Cache) observe(kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.log.Error(kind+" failed", "error", err)
	}
	c.cfg.Metrics.Computations.WithLabelValues(kind, outcome).Inc()
	c.cfg.Metrics.Duration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (c *Cache) status(s SessionStatus, phase string) {
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(s, phase)
	}
}

// clone copies the parts a caller could mutate. The structure is never
// modified after Build and is shared.
func (r *OrchestrationResult) clone() *OrchestrationResult {
	out := *r
	out.Annotations = r.Annotations.Clone()
	return &out
}
