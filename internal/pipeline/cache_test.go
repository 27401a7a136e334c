package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/classify"
	"github.com/dgallion1/annoscope/internal/doctree"
	"github.com/dgallion1/annoscope/internal/positions"
	"github.com/dgallion1/annoscope/internal/scope"
)

const redlineV1 = `<html><body>
<section data-section="1"><p>The <span data-comment="Who?">buyer</span> pays. Fees are <del>sixty</del><ins>thirty</ins> days.</p></section>
<section data-section="2"><p><mark>Term</mark> is one year.</p></section>
</body></html>`

// redlineV2 drops the comment on "buyer".
const redlineV2 = `<html><body>
<section data-section="1"><p>The buyer pays. Fees are <del>sixty</del><ins>thirty</ins> days.</p></section>
<section data-section="2"><p><mark>Term</mark> is one year.</p></section>
</body></html>`

// gatedSource counts loads and, when gated, blocks each load until release
// is closed.
type gatedSource struct {
	inner   MemorySource
	calls   atomic.Int32
	gated   bool
	entered chan struct{}
	release chan struct{}
	err     error
}

func newGatedSource(gated bool) *gatedSource {
	return &gatedSource{
		gated:   gated,
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *gatedSource) Load(ctx context.Context) (Document, error) {
	g.calls.Add(1)
	if g.gated {
		g.entered <- struct{}{}
		<-g.release
	}
	if g.err != nil {
		return Document{}, g.err
	}
	return g.inner.Load(ctx)
}

// gate blocks each call until release is closed. The zero value does not
// block.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() gate {
	return gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g gate) wait() {
	if g.release == nil {
		return
	}
	g.entered <- struct{}{}
	<-g.release
}

type fakeClassifier struct {
	calls atomic.Int32
	err   error
	gate  gate
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, set *annotation.Set) (*classify.Result, error) {
	f.calls.Add(1)
	f.gate.wait()
	if f.err != nil {
		return nil, f.err
	}
	res := &classify.Result{Model: "fake"}
	for _, it := range classify.Items(set) {
		res.Classifications = append(res.Classifications, classify.Classification{Ref: it.Ref, Label: classify.LabelNote, Confidence: 1})
	}
	return res, nil
}

type fakePositions struct {
	calls atomic.Int32
	gate  gate
}

func (f *fakePositions) Extract(_ context.Context, s *doctree.Structure) (*positions.Result, error) {
	f.calls.Add(1)
	f.gate.wait()
	return &positions.Result{Positions: []positions.Position{{SectionNumber: "1", Topic: "payment", StartOffset: 0, EndOffset: 3, Text: s.Slice(0, 3)}}}, nil
}

func newTestCache(src Source, cl Classifier, pos PositionExtractor) *Cache {
	return NewCache(CacheConfig{Source: src, Classifier: cl, Positions: pos})
}

func redlineSource(gated bool) *gatedSource {
	src := newGatedSource(gated)
	src.inner.Put(Document{Filename: "redline.html", Data: []byte(redlineV1)})
	return src
}

func TestCache_StoresSnapshot(t *testing.T) {
	src := redlineSource(false)
	c := newTestCache(src, nil, nil)
	ctx := context.Background()

	first, err := c.GetOrchestrationResult(ctx, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := annotation.Counts{Comments: 1, Highlights: 1, WordLevelTrackChanges: 1}
	if first.Counts != want {
		t.Errorf("expected %+v, got %+v", want, first.Counts)
	}
	if first.Generation != 1 {
		t.Errorf("expected generation 1, got %d", first.Generation)
	}

	again, _ := c.GetOrchestrationResult(ctx, Options{})
	if src.calls.Load() != 1 || again.Generation != 1 {
		t.Errorf("expected cached snapshot, got %d loads and generation %d", src.calls.Load(), again.Generation)
	}

	forced, _ := c.GetOrchestrationResult(ctx, Options{ForceRefresh: true})
	if src.calls.Load() != 2 || forced.Generation != 2 {
		t.Errorf("expected forced re-extraction, got %d loads and generation %d", src.calls.Load(), forced.Generation)
	}
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := newTestCache(redlineSource(false), nil, nil)
	ctx := context.Background()
	res, _ := c.GetOrchestrationResult(ctx, Options{})
	res.Annotations.Comments[0].CommentContent = "mutated"

	again, _ := c.GetOrchestrationResult(ctx, Options{})
	if again.Annotations.Comments[0].CommentContent != "Who?" {
		t.Errorf("expected stored snapshot to be isolated, got %q", again.Annotations.Comments[0].CommentContent)
	}
}

func TestCache_ConcurrentCallersShareOneExtraction(t *testing.T) {
	src := redlineSource(true)
	c := newTestCache(src, nil, nil)

	var wg sync.WaitGroup
	results := make([]*OrchestrationResult, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetOrchestrationResult(context.Background(), Options{})
		}(i)
	}
	<-src.entered
	// let the other callers join the flight before it completes
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	if n := src.calls.Load(); n != 1 {
		t.Fatalf("expected 1 load, got %d", n)
	}
	for i, r := range results {
		if r == nil || r.Generation != 1 {
			t.Errorf("caller %d: expected generation 1, got %+v", i, r)
		}
	}
}

func TestCache_InvalidateDiscardsInFlightResult(t *testing.T) {
	src := redlineSource(true)
	c := newTestCache(src, nil, nil)

	done := make(chan *OrchestrationResult)
	go func() {
		res, _ := c.GetOrchestrationResult(context.Background(), Options{})
		done <- res
	}()
	<-src.entered
	c.Invalidate()
	close(src.release)

	res := <-done
	if res == nil || res.Generation != 0 {
		t.Fatalf("expected an unstored result, got %+v", res)
	}

	next, err := c.GetOrchestrationResult(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls.Load() != 2 {
		t.Errorf("expected a fresh extraction after invalidate, got %d loads", src.calls.Load())
	}
	if next.Generation == 0 {
		t.Error("expected the fresh extraction to be stored")
	}
}

func TestCache_ExtractionFailureKeepsSnapshot(t *testing.T) {
	src := redlineSource(false)
	c := newTestCache(src, nil, nil)
	ctx := context.Background()

	if _, err := c.GetOrchestrationResult(ctx, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src.err = errors.New("host unreachable")

	_, err := c.GetOrchestrationResult(ctx, Options{ForceRefresh: true})
	var ef *annotation.ExtractionFailure
	if !errors.As(err, &ef) || ef.Stage != "load" {
		t.Fatalf("expected load ExtractionFailure, got %v", err)
	}

	res, err := c.GetOrchestrationResult(ctx, Options{})
	if err != nil || res.Generation != 1 {
		t.Errorf("expected stored snapshot to survive, got %+v, %v", res, err)
	}
}

func TestCache_NoDocument(t *testing.T) {
	c := newTestCache(&MemorySource{}, nil, nil)
	_, err := c.GetOrchestrationResult(context.Background(), Options{})
	if !errors.Is(err, ErrNoDocument) {
		t.Errorf("expected ErrNoDocument, got %v", err)
	}
}

func TestCache_StructuralConsistencyError(t *testing.T) {
	src := &MemorySource{}
	src.Put(Document{
		Filename: "plain.txt",
		Data:     []byte("1. Scope\n\nGoods only."),
		Annotations: &annotation.Set{Comments: []annotation.Comment{
			{ID: "c1", SectionNumber: "9", SelectedText: "x", StartOffset: 0, EndOffset: 1},
		}},
	})
	c := newTestCache(src, nil, nil)
	_, err := c.GetOrchestrationResult(context.Background(), Options{})
	var sce *doctree.StructuralConsistencyError
	if !errors.As(err, &sce) || sce.SectionNumber != "9" {
		t.Fatalf("expected StructuralConsistencyError for section 9, got %v", err)
	}
}

func TestCache_FragmentsReplaceParsing(t *testing.T) {
	src := &MemorySource{}
	src.Put(Document{
		Title: "Host",
		Fragments: []doctree.Fragment{
			{SectionNumber: "1", Text: "Scope.\n", StartOffset: 0, EndOffset: 7},
			{SectionNumber: "1.1", Text: "Goods.\n", StartOffset: 7, EndOffset: 14},
		},
		Annotations: &annotation.Set{Highlights: []annotation.Highlight{
			{ID: "h1", SectionNumber: "1.1", SelectedText: "Goods", StartOffset: 0, EndOffset: 5},
		}},
	})
	c := newTestCache(src, nil, nil)
	res, err := c.GetOrchestrationResult(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "Host" || res.Structure.Len() != 14 || res.Counts.Highlights != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCache_ClassificationFollowsSnapshot(t *testing.T) {
	cl := &fakeClassifier{}
	c := newTestCache(redlineSource(false), cl, nil)
	ctx := context.Background()

	first, err := c.GetClassificationResult(ctx, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Classifications) != 3 || first.Generation != 1 {
		t.Fatalf("expected 3 classifications for generation 1, got %+v", first)
	}
	if _, err := c.GetClassificationResult(ctx, Options{}); err != nil || cl.calls.Load() != 1 {
		t.Errorf("expected cached classification, got %d calls, %v", cl.calls.Load(), err)
	}

	if _, err := c.GetOrchestrationResult(ctx, Options{ForceRefresh: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.GetClassificationResult(ctx, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cl.calls.Load() != 2 || second.Generation != 2 {
		t.Errorf("expected reclassification for generation 2, got %d calls, generation %d", cl.calls.Load(), second.Generation)
	}

	if _, err := c.GetClassificationResult(ctx, Options{ForceRefresh: true}); err != nil || cl.calls.Load() != 3 {
		t.Errorf("expected forced reclassification, got %d calls, %v", cl.calls.Load(), err)
	}
}

func TestCache_ClassificationNeverOlderThanSnapshot(t *testing.T) {
	cl := &fakeClassifier{gate: newGate()}
	c := newTestCache(redlineSource(false), cl, nil)
	ctx := context.Background()

	first := make(chan *ClassificationResult)
	go func() {
		res, _ := c.GetClassificationResult(ctx, Options{})
		first <- res
	}()
	<-cl.gate.entered

	orch, err := c.GetOrchestrationResult(ctx, Options{ForceRefresh: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orch.Generation != 2 {
		t.Fatalf("expected generation 2, got %d", orch.Generation)
	}

	second := make(chan *ClassificationResult)
	go func() {
		res, _ := c.GetClassificationResult(ctx, Options{})
		second <- res
	}()
	// let the second caller join the generation 1 flight
	time.Sleep(50 * time.Millisecond)
	close(cl.gate.release)

	if res := <-first; res == nil || res.Generation != 1 {
		t.Errorf("expected first caller to get generation 1, got %+v", res)
	}
	res := <-second
	if res == nil || res.Generation != 2 {
		t.Fatalf("expected second caller to get generation 2, got %+v", res)
	}
	if n := cl.calls.Load(); n != 2 {
		t.Errorf("expected 2 classifier calls, got %d", n)
	}

	cached, _ := c.GetClassificationResult(ctx, Options{})
	if cached.Generation != 2 || cl.calls.Load() != 2 {
		t.Errorf("expected generation 2 to be stored, got generation %d after %d calls", cached.Generation, cl.calls.Load())
	}
}

func TestCache_PositionsNeverOlderThanSnapshot(t *testing.T) {
	pos := &fakePositions{gate: newGate()}
	c := newTestCache(redlineSource(false), nil, pos)
	ctx := context.Background()

	first := make(chan *PositionsResult)
	go func() {
		res, _ := c.GetPositions(ctx, Options{})
		first <- res
	}()
	<-pos.gate.entered

	if _, err := c.GetOrchestrationResult(ctx, Options{ForceRefresh: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := make(chan *PositionsResult)
	go func() {
		res, _ := c.GetPositions(ctx, Options{})
		second <- res
	}()
	time.Sleep(50 * time.Millisecond)
	close(pos.gate.release)

	if res := <-first; res == nil || res.Generation != 1 {
		t.Errorf("expected first caller to get generation 1, got %+v", res)
	}
	if res := <-second; res == nil || res.Generation != 2 {
		t.Errorf("expected second caller to get generation 2, got %+v", res)
	}
	if n := pos.calls.Load(); n != 2 {
		t.Errorf("expected 2 position extractions, got %d", n)
	}
}

func TestCache_ClassificationErrorsPropagate(t *testing.T) {
	boom := errors.New("classifier down")
	c := newTestCache(redlineSource(false), &fakeClassifier{err: boom}, nil)
	if _, err := c.GetClassificationResult(context.Background(), Options{}); !errors.Is(err, boom) {
		t.Errorf("expected classifier error, got %v", err)
	}
}

func TestCache_BackendsNotConfigured(t *testing.T) {
	c := newTestCache(redlineSource(false), nil, nil)
	if _, err := c.GetClassificationResult(context.Background(), Options{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := c.GetPositions(context.Background(), Options{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCache_PositionsClearedByInvalidate(t *testing.T) {
	pos := &fakePositions{}
	c := newTestCache(redlineSource(false), nil, pos)
	ctx := context.Background()

	res, err := c.GetPositions(ctx, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Positions) != 1 || res.Positions[0].Text != "The" {
		t.Errorf("unexpected positions %+v", res.Positions)
	}
	c.GetPositions(ctx, Options{})
	if pos.calls.Load() != 1 {
		t.Errorf("expected cached positions, got %d calls", pos.calls.Load())
	}

	c.Invalidate()
	c.GetPositions(ctx, Options{})
	if pos.calls.Load() != 2 {
		t.Errorf("expected positions recomputed after invalidate, got %d calls", pos.calls.Load())
	}
}

func TestCache_RefreshWithReconciliation(t *testing.T) {
	src := redlineSource(false)
	c := newTestCache(src, nil, nil)
	ctx := context.Background()

	orch, err := c.GetOrchestrationResult(ctx, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	old := scope.AnnotationScope{
		Mode:   scope.ModeIncludeOnly,
		Ranges: []scope.SelectionRange{scope.NewSectionRange("Everything", []string{"1", "2"}, orch.Annotations)},
		Types:  scope.TypeToggles{Comments: true, TrackChanges: true, Highlights: true},
	}

	src.inner.Put(Document{Filename: "redline.html", Data: []byte(redlineV2)})
	res, err := c.RefreshWithReconciliation(ctx, old)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := res.Reconciliation.Summary
	if sum.Removed.Counts().Comments != 1 || sum.Preserved.Total() != 2 {
		t.Errorf("expected 1 comment removed and 2 kept, got %+v", sum)
	}
	if res.Orchestration.Generation != 2 {
		t.Errorf("expected generation 2, got %d", res.Orchestration.Generation)
	}
	if res.Message == "" {
		t.Error("expected a summary message")
	}
	if len(old.Ranges[0].MatchedAnnotations.Comments) != 1 {
		t.Error("expected the caller's scope to be left alone")
	}

	stored, _ := c.GetOrchestrationResult(ctx, Options{})
	if stored.Counts.Comments != 0 {
		t.Errorf("expected the new snapshot to be stored, got %+v", stored.Counts)
	}
}

func TestCache_RefreshFailureLeavesSnapshot(t *testing.T) {
	src := redlineSource(false)
	c := newTestCache(src, nil, nil)
	ctx := context.Background()
	c.GetOrchestrationResult(ctx, Options{})

	src.err = errors.New("timeout")
	if _, err := c.RefreshWithReconciliation(ctx, scope.Default()); err == nil {
		t.Fatal("expected refresh to fail")
	}
	res, _ := c.GetOrchestrationResult(ctx, Options{})
	if res.Generation != 1 {
		t.Errorf("expected generation 1 to remain, got %d", res.Generation)
	}
}

func TestCache_ConcurrentRefreshIsRejected(t *testing.T) {
	src := redlineSource(true)
	c := newTestCache(src, nil, nil)

	done := make(chan error)
	go func() {
		_, err := c.RefreshWithReconciliation(context.Background(), scope.Default())
		done <- err
	}()
	<-src.entered

	if _, err := c.RefreshWithReconciliation(context.Background(), scope.Default()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("expected ErrRefreshInProgress, got %v", err)
	}
	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if c.Refreshing() {
		t.Error("expected latch to be released")
	}
}

func TestCache_Bundle(t *testing.T) {
	c := newTestCache(redlineSource(false), &fakeClassifier{}, nil)
	ctx := context.Background()
	if _, err := c.GetClassificationResult(ctx, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sc := scope.AnnotationScope{Mode: scope.ModeAll, Types: scope.TypeToggles{Comments: true}}
	b, err := c.Bundle(ctx, sc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Filtered.Counts.Total() != 1 || b.Filtered.Counts.Comments != 1 {
		t.Errorf("expected only the comment, got %+v", b.Filtered.Counts)
	}
	if len(b.Classifications) != 1 || b.Classifications[0].Ref.Kind != annotation.KindComment {
		t.Errorf("expected the comment's classification, got %+v", b.Classifications)
	}
}

func TestCache_BundleNothingFound(t *testing.T) {
	src := &MemorySource{}
	src.Put(Document{Filename: "plain.txt", Data: []byte("1. Scope\n\nGoods only.")})
	c := newTestCache(src, nil, nil)

	_, err := c.Bundle(context.Background(), scope.Default())
	var ve *scope.ValidationError
	if !errors.As(err, &ve) || ve.Code != scope.NoAnnotationsFound {
		t.Errorf("expected NoAnnotationsFound, got %v", err)
	}
}
