// Package scope maps user selections onto the document structure, matches
// annotations to those selections and filters annotation sets by the
// resulting scope.
package scope

import (
	"fmt"

	"github.com/dgallion1/annoscope/internal/annotation"
)

// Mode selects how SelectionRanges restrict annotations.
type Mode string

const (
	ModeAll         Mode = "all"
	ModeIncludeOnly Mode = "include-only"
	ModeExclude     Mode = "exclude"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAll, ModeIncludeOnly, ModeExclude:
		return true
	}
	return false
}

// TypeToggles enables annotation categories. TrackChanges covers word-level
// changes, full-sentence deletions and insertions, and structural changes.
type TypeToggles struct {
	Comments     bool `json:"comments"`
	TrackChanges bool `json:"trackChanges"`
	Highlights   bool `json:"highlights"`
}

// AnnotationScope is the user's chosen subset of annotations.
type AnnotationScope struct {
	Mode   Mode             `json:"mode"`
	Ranges []SelectionRange `json:"ranges"`
	Types  TypeToggles      `json:"types"`
}

// Default is the scope used before the user chooses anything.
func Default() AnnotationScope {
	return AnnotationScope{
		Mode:  ModeAll,
		Types: TypeToggles{Comments: true, TrackChanges: true, Highlights: true},
	}
}

// Configured reports whether the scope is usable as chosen: range-based
// modes need at least one range.
func (sc AnnotationScope) Configured() bool {
	switch sc.Mode {
	case ModeIncludeOnly, ModeExclude:
		return len(sc.Ranges) > 0
	}
	return sc.Mode == ModeAll
}

// Validate checks a scope received from a caller.
func (sc AnnotationScope) Validate() error {
	if !sc.Mode.Valid() {
		return fmt.Errorf("unknown scope mode %q", sc.Mode)
	}
	seen := make(map[string]bool, len(sc.Ranges))
	for _, r := range sc.Ranges {
		if r.ID == "" {
			return fmt.Errorf("selection range %q has no id", r.Label)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate selection range id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// Clone deep-copies the scope.
func (sc AnnotationScope) Clone() AnnotationScope {
	out := sc
	out.Ranges = nil
	for _, r := range sc.Ranges {
		out.Ranges = append(out.Ranges, r.Clone())
	}
	return out
}

// SelectionRange is a named, user-visible scope entry.
type SelectionRange struct {
	ID                 string            `json:"id"`
	Label              string            `json:"label"`
	SelectedText       string            `json:"selectedText"`
	TopLevelSections   []string          `json:"topLevelSections"`
	SectionNumbers     []string          `json:"sectionNumbers,omitempty"`
	AnnotationCounts   annotation.Counts `json:"annotationCounts"`
	MatchedAnnotations annotation.Set    `json:"matchedAnnotations"`
}

// Clone deep-copies the range.
func (r SelectionRange) Clone() SelectionRange {
	r.TopLevelSections = append([]string(nil), r.TopLevelSections...)
	r.SectionNumbers = append([]string(nil), r.SectionNumbers...)
	r.MatchedAnnotations = r.MatchedAnnotations.Clone()
	return r
}

// Selection is either the whole document or a half-open combined-document
// interval.
type Selection struct {
	All   bool `json:"all,omitempty"`
	Start int  `json:"start"`
	End   int  `json:"end"`
}

// Normalize orders the endpoints so Start <= End.
func (s Selection) Normalize() Selection {
	if s.End < s.Start {
		s.Start, s.End = s.End, s.Start
	}
	return s
}

// SectionCoverage describes how much of one section a selection covers.
// For a partially covered section with children, the offsets cover only the
// section's own text and its children are reported separately. The flags
// are always measured against the whole section, so selecting all of a
// branch's own text but not all of its children reports HasEllipsisAfter.
type SectionCoverage struct {
	SectionNumber     string `json:"sectionNumber"`
	StartInSection    int    `json:"startInSection"`
	EndInSection      int    `json:"endInSection"`
	Length            int    `json:"length"`
	IsFullyCovered    bool   `json:"isFullyCovered"`
	HasEllipsisBefore bool   `json:"hasEllipsisBefore"`
	HasEllipsisAfter  bool   `json:"hasEllipsisAfter"`
	SelectedText      string `json:"selectedText"`
}

// AnnotationMatchPreview is what the matcher found for a selection.
type AnnotationMatchPreview struct {
	Matched          annotation.Set    `json:"matched"`
	Counts           annotation.Counts `json:"counts"`
	TopLevelSections []string          `json:"topLevelSections"`
	Sections         []SectionCoverage `json:"sections"`
}

// Empty reports whether nothing matched.
func (p AnnotationMatchPreview) Empty() bool {
	return p.Matched.Empty()
}

// WithMatches returns r with its matched annotations replaced and the
// derived counts and top-level sections recomputed.
func (r SelectionRange) WithMatches(set annotation.Set) SelectionRange {
	r = r.Clone()
	r.MatchedAnnotations = set.Clone()
	r.AnnotationCounts = set.Counts()
	r.TopLevelSections = topLevelSections(set)
	return r
}
