package scope

import (
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/doctree"
)

// FindAnnotationsInSelection returns the annotations whose combined-document
// span overlaps sel. Containment is not required: an annotation straddling
// the selection boundary matches.
//
// Word-level track changes match per sentence; the matched record keeps only
// the deleted and added items that fall inside the selection. An edit
// straddling the selection boundary is dropped from the record. A caret
// keeps the edits it sits in.
// Annotations whose position cannot be resolved against s are skipped.
func FindAnnotationsInSelection(sel Selection, set annotation.Set, s *doctree.Structure) AnnotationMatchPreview {
	if sel.All {
		matched := set.Clone()
		return preview(matched, MapSelectionToSections(0, s.Len(), s))
	}
	sel = sel.Normalize()
	window := annotation.Span{Start: sel.Start, End: sel.End}

	var matched annotation.Set
	for _, a := range set.All() {
		switch v := a.(type) {
		case annotation.WordLevelTrackChange:
			if w, ok := matchSentence(v, window, s); ok {
				matched.Append(w)
			}
		case annotation.Comment, annotation.Highlight, annotation.FullSentenceDeletion,
			annotation.FullSentenceInsertion, annotation.StructuralChange:
			sp, ok := annotation.CombinedSpan(v, s)
			if ok && overlaps(sp, window) {
				matched.Append(v)
			}
		}
	}
	return preview(matched.Clone(), MapSelectionToSections(sel.Start, sel.End, s))
}

// FindAnnotationsInSections returns the annotations attached to any of the
// given sections or their descendants. No positions are involved.
func FindAnnotationsInSections(sectionNumbers []string, set annotation.Set) AnnotationMatchPreview {
	var matched annotation.Set
	for _, a := range set.All() {
		for _, num := range sectionNumbers {
			if inSection(a.Section(), num) {
				matched.Append(a)
				break
			}
		}
	}
	return preview(matched.Clone(), nil)
}

// NewSelectionRange matches sel and packages the result as a named range.
func NewSelectionRange(label string, sel Selection, set annotation.Set, s *doctree.Structure) SelectionRange {
	p := FindAnnotationsInSelection(sel, set, s)
	r := SelectionRange{
		ID:                 uuid.NewString(),
		Label:              label,
		TopLevelSections:   p.TopLevelSections,
		AnnotationCounts:   p.Counts,
		MatchedAnnotations: p.Matched,
	}
	if !sel.All {
		sel = sel.Normalize()
		r.SelectedText = s.Slice(sel.Start, sel.End)
	}
	for _, c := range p.Sections {
		r.SectionNumbers = append(r.SectionNumbers, c.SectionNumber)
	}
	if r.Label == "" {
		r.Label = defaultLabel(r.TopLevelSections)
	}
	return r
}

// NewSectionRange builds a range scoped by section numbers instead of offsets.
func NewSectionRange(label string, sectionNumbers []string, set annotation.Set) SelectionRange {
	p := FindAnnotationsInSections(sectionNumbers, set)
	r := SelectionRange{
		ID:                 uuid.NewString(),
		Label:              label,
		TopLevelSections:   p.TopLevelSections,
		SectionNumbers:     append([]string(nil), sectionNumbers...),
		AnnotationCounts:   p.Counts,
		MatchedAnnotations: p.Matched,
	}
	if r.Label == "" {
		r.Label = defaultLabel(r.TopLevelSections)
	}
	return r
}

func matchSentence(w annotation.WordLevelTrackChange, window annotation.Span, s *doctree.Structure) (annotation.WordLevelTrackChange, bool) {
	local, ok := annotation.SentenceSpan(w, s)
	if !ok {
		return w, false
	}
	combined, ok := annotation.SectionToCombined(w.SectionNumber, local, s)
	if !ok || !overlaps(combined, window) {
		return w, false
	}
	out := w.Clone()
	out.Deleted = editsInWindow(w, w.Deleted, local, window, s)
	out.Added = editsInWindow(w, w.Added, local, window, s)
	return out, true
}

func editsInWindow(w annotation.WordLevelTrackChange, edits []annotation.Edit, sentence, window annotation.Span, s *doctree.Structure) []annotation.Edit {
	var out []annotation.Edit
	for _, e := range edits {
		local, ok := annotation.EditSpan(w, e, sentence, s)
		if !ok {
			continue
		}
		combined, ok := annotation.SectionToCombined(w.SectionNumber, local, s)
		if ok && within(combined, window) {
			out = append(out, e)
		}
	}
	return out
}

// overlaps tests two half-open spans for a non-empty intersection. A
// zero-length span is treated as a point, so a caret inside an annotation
// matches it and an insertion point inside the selection matches too.
func overlaps(a, b annotation.Span) bool {
	switch {
	case a.Start == a.End && b.Start == b.End:
		return a.Start == b.Start
	case a.Start == a.End:
		return b.Start <= a.Start && a.Start < b.End
	case b.Start == b.End:
		return a.Start <= b.Start && b.Start < a.End
	}
	return a.Start < b.End && b.Start < a.End
}

// within tests whether a lies inside the selection b. A caret selection or
// a zero-length edit falls back to overlaps.
func within(a, b annotation.Span) bool {
	if a.Start == a.End || b.Start == b.End {
		return overlaps(a, b)
	}
	return b.Start <= a.Start && a.End <= b.End
}

func inSection(section, scope string) bool {
	section = strings.TrimSpace(section)
	scope = strings.TrimSpace(scope)
	return section == scope || strings.HasPrefix(section, scope+".")
}

func preview(matched annotation.Set, sections []SectionCoverage) AnnotationMatchPreview {
	return AnnotationMatchPreview{
		Matched:          matched,
		Counts:           matched.Counts(),
		TopLevelSections: topLevelSections(matched),
		Sections:         sections,
	}
}

// topLevelSections returns the sorted, de-duplicated leading section
// components of the matched annotations. Numeric components sort by value.
func topLevelSections(set annotation.Set) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range set.All() {
		top := doctree.TopLevel(a.Section())
		if top == "" || seen[top] {
			continue
		}
		seen[top] = true
		out = append(out, top)
	}
	SortSectionNumbers(out)
	return out
}

// SortSectionNumbers orders section numbers component by component,
// comparing numeric components by value.
func SortSectionNumbers(nums []string) {
	sort.SliceStable(nums, func(i, j int) bool {
		return compareSectionNumbers(nums[i], nums[j]) < 0
	})
}

func compareSectionNumbers(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				return na - nb
			}
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		default:
			if c := strings.Compare(pa[i], pb[i]); c != 0 {
				return c
			}
		}
	}
	return len(pa) - len(pb)
}

func defaultLabel(tops []string) string {
	switch len(tops) {
	case 0:
		return "Selection"
	case 1:
		return "Section " + tops[0]
	}
	return "Sections " + strings.Join(tops, ", ")
}
