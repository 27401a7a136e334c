package scope

import (
	"fmt"

	"github.com/dgallion1/annoscope/internal/annotation"
)

// FilteredAnnotations is the bundle handed to generation features.
type FilteredAnnotations struct {
	Mode        Mode              `json:"mode"`
	Annotations annotation.Set    `json:"annotations"`
	Counts      annotation.Counts `json:"counts"`
}

// NoAnnotationsFound is the ValidationError code for an empty filter result.
const NoAnnotationsFound = "NO_ANNOTATIONS_FOUND"

// ValidationError is a user-facing condition, not a system fault.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FilterAnnotations applies sc to all.
//
// In ModeAll every annotation of an enabled type passes and ranges are
// ignored. In ModeIncludeOnly an annotation passes only if some range
// matched it; with no ranges nothing passes. In ModeExclude an annotation
// passes unless some range matched it; with no ranges everything of the
// enabled types passes. Word-level track changes are matched by sentence
// and pass as the full record from all.
func FilterAnnotations(all annotation.Set, sc AnnotationScope) FilteredAnnotations {
	union := matchedUnion(sc.Ranges)
	var out annotation.Set
	for _, a := range all.All() {
		if !typeEnabled(a, sc.Types) {
			continue
		}
		switch sc.Mode {
		case ModeIncludeOnly:
			if !contains(union, a) {
				continue
			}
		case ModeExclude:
			if contains(union, a) {
				continue
			}
		}
		out.Append(a)
	}
	out = out.Clone()
	return FilteredAnnotations{Mode: sc.Mode, Annotations: out, Counts: out.Counts()}
}

// ForGeneration filters all by sc and reports an empty result as a
// *ValidationError with code NoAnnotationsFound.
func ForGeneration(all annotation.Set, sc AnnotationScope) (FilteredAnnotations, error) {
	f := FilterAnnotations(all, sc)
	if f.Annotations.Empty() {
		return f, &ValidationError{
			Code:    NoAnnotationsFound,
			Message: fmt.Sprintf("no annotations match the %s scope", sc.Mode),
		}
	}
	return f, nil
}

func matchedUnion(ranges []SelectionRange) annotation.Set {
	var u annotation.Set
	for _, r := range ranges {
		for _, a := range r.MatchedAnnotations.All() {
			u.Append(a)
		}
	}
	return u
}

func typeEnabled(a annotation.Annotation, t TypeToggles) bool {
	switch a.(type) {
	case annotation.Comment:
		return t.Comments
	case annotation.Highlight:
		return t.Highlights
	case annotation.WordLevelTrackChange, annotation.FullSentenceDeletion,
		annotation.FullSentenceInsertion, annotation.StructuralChange:
		return t.TrackChanges
	}
	return false
}

func contains(set annotation.Set, a annotation.Annotation) bool {
	switch v := a.(type) {
	case annotation.Comment:
		return set.HasComment(v)
	case annotation.Highlight:
		return set.HasHighlight(v)
	case annotation.WordLevelTrackChange:
		_, ok := set.Sentence(v)
		return ok
	case annotation.FullSentenceDeletion:
		return set.HasFullSentenceDeletion(v)
	case annotation.FullSentenceInsertion:
		return set.HasFullSentenceInsertion(v)
	case annotation.StructuralChange:
		return set.HasStructuralChange(v)
	}
	return false
}
