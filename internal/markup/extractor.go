package markup

import (
	"bytes"
	"context"

	"github.com/dgallion1/annoscope/internal/annotation"
)

// Extractor implements annotation.Extractor and
// annotation.StructuralChangeExtractor over HTML redlines.
type Extractor struct{}

var (
	_ annotation.Extractor                 = Extractor{}
	_ annotation.StructuralChangeExtractor = Extractor{}
)

func (Extractor) parse(ctx context.Context, markup []byte) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(markup))
}

func (x Extractor) ExtractComments(ctx context.Context, markup []byte) ([]annotation.Comment, error) {
	doc, err := x.parse(ctx, markup)
	if err != nil {
		return nil, err
	}
	return doc.Annotations.Comments, nil
}

func (x Extractor) ExtractHighlights(ctx context.Context, markup []byte) ([]annotation.Highlight, error) {
	doc, err := x.parse(ctx, markup)
	if err != nil {
		return nil, err
	}
	return doc.Annotations.Highlights, nil
}

func (x Extractor) ExtractTrackChanges(ctx context.Context, markup []byte) (annotation.TrackChanges, error) {
	doc, err := x.parse(ctx, markup)
	if err != nil {
		return annotation.TrackChanges{}, err
	}
	return annotation.TrackChanges{
		WordLevel:              doc.Annotations.WordLevelTrackChanges,
		FullSentenceDeletions:  doc.Annotations.FullSentenceDeletions,
		FullSentenceInsertions: doc.Annotations.FullSentenceInsertions,
	}, nil
}

func (x Extractor) ExtractStructuralChanges(ctx context.Context, markup []byte) ([]annotation.StructuralChange, error) {
	doc, err := x.parse(ctx, markup)
	if err != nil {
		return nil, err
	}
	return doc.Annotations.StructuralChanges, nil
}
