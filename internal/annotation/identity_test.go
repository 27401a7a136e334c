package annotation

import (
	"context"
	"errors"
	"testing"
)

func sentence(deleted, added []Edit) WordLevelTrackChange {
	return WordLevelTrackChange{
		SentenceID:    "s1",
		SectionNumber: "4.2",
		Deleted:       deleted,
		Added:         added,
	}
}

func TestSubsetOf_SupersetPreserves(t *testing.T) {
	old := sentence([]Edit{{Text: "foo", StartOffset: IntPtr(0), EndOffset: IntPtr(3)}}, nil)
	grown := sentence([]Edit{
		{Text: "foo", StartOffset: IntPtr(0), EndOffset: IntPtr(3)},
		{Text: "bar", StartOffset: IntPtr(10), EndOffset: IntPtr(13)},
	}, []Edit{{Text: "baz", StartOffset: IntPtr(4)}})

	if !old.SubsetOf(grown) {
		t.Error("expected old sentence to be a subset of the grown one")
	}
	if grown.SubsetOf(old) {
		t.Error("expected grown sentence not to be a subset of the old one")
	}
}

func TestSubsetOf_MissingItemDrops(t *testing.T) {
	old := sentence([]Edit{{Text: "foo", StartOffset: IntPtr(0), EndOffset: IntPtr(3)}}, []Edit{{Text: "new", StartOffset: IntPtr(5)}})
	tests := []struct {
		name string
		next WordLevelTrackChange
	}{
		{"deleted item gone", sentence([]Edit{{Text: "bar", StartOffset: IntPtr(10)}}, []Edit{{Text: "new", StartOffset: IntPtr(5)}})},
		{"deleted item moved", sentence([]Edit{{Text: "foo", StartOffset: IntPtr(1)}}, []Edit{{Text: "new", StartOffset: IntPtr(5)}})},
		{"added item gone", sentence([]Edit{{Text: "foo", StartOffset: IntPtr(0)}}, nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if old.SubsetOf(tc.next) {
				t.Error("expected subset check to fail")
			}
			del, add := old.Missing(tc.next)
			if len(del)+len(add) == 0 {
				t.Error("expected missing items to be reported")
			}
		})
	}
}

func TestEditSame_IgnoresEndOffset(t *testing.T) {
	a := Edit{Text: "foo", StartOffset: IntPtr(0), EndOffset: IntPtr(3)}
	b := Edit{Text: "foo", StartOffset: IntPtr(0)}
	if !a.Same(b) {
		t.Error("expected edits to match on text and start offset")
	}
	if a.Same(Edit{Text: "foo"}) {
		t.Error("expected nil start offset not to match a set one")
	}
}

func TestStrictEquality(t *testing.T) {
	c := Comment{ID: "c1", SectionNumber: "1", SelectedText: "x", CommentContent: "why?", StartOffset: 1, EndOffset: 2}
	set := Set{Comments: []Comment{c}}
	if !set.HasComment(c) {
		t.Error("expected identical comment to be found")
	}
	moved := c
	moved.StartOffset = 2
	if set.HasComment(moved) {
		t.Error("expected comment with a different offset not to match")
	}

	d := FullSentenceDeletion{ID: "d1", SectionNumber: "3", DeletedText: "Gone.", Span: &Span{0, 5}}
	set.FullSentenceDeletions = []FullSentenceDeletion{{ID: "d1", SectionNumber: "3", DeletedText: "Gone.", Span: &Span{0, 5}}}
	if !set.HasFullSentenceDeletion(d) {
		t.Error("expected deletion with equal span values to match")
	}
	d.Span = nil
	if set.HasFullSentenceDeletion(d) {
		t.Error("expected deletion without span not to match one with a span")
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	orig := Set{WordLevelTrackChanges: []WordLevelTrackChange{
		sentence([]Edit{{Text: "foo", StartOffset: IntPtr(0)}}, nil),
	}}
	cp := orig.Clone()
	*cp.WordLevelTrackChanges[0].Deleted[0].StartOffset = 9
	cp.WordLevelTrackChanges[0].Deleted[0].Text = "changed"
	if *orig.WordLevelTrackChanges[0].Deleted[0].StartOffset != 0 || orig.WordLevelTrackChanges[0].Deleted[0].Text != "foo" {
		t.Error("expected clone to be independent of the original")
	}
}

type failingExtractor struct {
	StaticExtractor
}

func (failingExtractor) ExtractHighlights(context.Context, []byte) ([]Highlight, error) {
	return nil, errors.New("host unreachable")
}

func TestExtractAll(t *testing.T) {
	records := Set{
		Comments:          []Comment{{ID: "c1", SectionNumber: "1"}},
		StructuralChanges: []StructuralChange{{ID: "h1", SectionNumber: "2", ChangeType: StructuralRenumbered}},
	}
	set, err := ExtractAll(context.Background(), StaticExtractor{Records: records}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Comments) != 1 || len(set.StructuralChanges) != 1 {
		t.Errorf("expected records to pass through, got %+v", set.Counts())
	}

	_, err = ExtractAll(context.Background(), failingExtractor{}, nil)
	var ef *ExtractionFailure
	if !errors.As(err, &ef) {
		t.Fatalf("expected ExtractionFailure, got %v", err)
	}
	if ef.Stage != "highlights" {
		t.Errorf("expected stage %q, got %q", "highlights", ef.Stage)
	}
}
