package annotation

import (
	"context"
	"fmt"
)

// TrackChanges is the combined output of track-change extraction.
type TrackChanges struct {
	WordLevel              []WordLevelTrackChange  `json:"wordLevel"`
	FullSentenceDeletions  []FullSentenceDeletion  `json:"fullSentenceDeletions"`
	FullSentenceInsertions []FullSentenceInsertion `json:"fullSentenceInsertions"`
}

// Extractor turns host markup into annotation records. Offsets in the
// returned records are relative to their section's own text.
type Extractor interface {
	ExtractComments(ctx context.Context, markup []byte) ([]Comment, error)
	ExtractHighlights(ctx context.Context, markup []byte) ([]Highlight, error)
	ExtractTrackChanges(ctx context.Context, markup []byte) (TrackChanges, error)
}

// StructuralChangeExtractor is implemented by extractors that also report
// heading and numbering deltas.
type StructuralChangeExtractor interface {
	ExtractStructuralChanges(ctx context.Context, markup []byte) ([]StructuralChange, error)
}

// ExtractionFailure wraps a host or network failure during extraction.
type ExtractionFailure struct {
	Stage string
	Err   error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Stage, e.Err)
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}

// ExtractAll runs every extraction function of x and assembles a Set.
func ExtractAll(ctx context.Context, x Extractor, markup []byte) (*Set, error) {
	comments, err := x.ExtractComments(ctx, markup)
	if err != nil {
		return nil, &ExtractionFailure{Stage: "comments", Err: err}
	}
	highlights, err := x.ExtractHighlights(ctx, markup)
	if err != nil {
		return nil, &ExtractionFailure{Stage: "highlights", Err: err}
	}
	tc, err := x.ExtractTrackChanges(ctx, markup)
	if err != nil {
		return nil, &ExtractionFailure{Stage: "track changes", Err: err}
	}
	set := &Set{
		Comments:               comments,
		Highlights:             highlights,
		WordLevelTrackChanges:  tc.WordLevel,
		FullSentenceDeletions:  tc.FullSentenceDeletions,
		FullSentenceInsertions: tc.FullSentenceInsertions,
	}
	if sx, ok := x.(StructuralChangeExtractor); ok {
		sc, err := sx.ExtractStructuralChanges(ctx, markup)
		if err != nil {
			return nil, &ExtractionFailure{Stage: "structural changes", Err: err}
		}
		set.StructuralChanges = sc
	}
	return set, nil
}

// StaticExtractor returns records the host computed itself, ignoring markup.
type StaticExtractor struct {
	Records Set
}

func (x StaticExtractor) ExtractComments(context.Context, []byte) ([]Comment, error) {
	return append([]Comment(nil), x.Records.Comments...), nil
}

func (x StaticExtractor) ExtractHighlights(context.Context, []byte) ([]Highlight, error) {
	return append([]Highlight(nil), x.Records.Highlights...), nil
}

func (x StaticExtractor) ExtractTrackChanges(context.Context, []byte) (TrackChanges, error) {
	c := x.Records.Clone()
	return TrackChanges{
		WordLevel:              c.WordLevelTrackChanges,
		FullSentenceDeletions:  c.FullSentenceDeletions,
		FullSentenceInsertions: c.FullSentenceInsertions,
	}, nil
}

func (x StaticExtractor) ExtractStructuralChanges(context.Context, []byte) ([]StructuralChange, error) {
	return append([]StructuralChange(nil), x.Records.StructuralChanges...), nil
}
