// Package reconcile re-derives a user's annotation scope after the document
// has been re-extracted. Annotations carry no durable identity, so each
// previously matched record is re-found by content: strict equality for
// single records, subset matching for sentence-grouped track changes.
package reconcile

import (
	"errors"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/scope"
)

// ErrMissingAnnotations is returned when there is no new annotation set to
// reconcile against, which means extraction did not produce one.
var ErrMissingAnnotations = errors.New("reconcile: new annotation set is missing")

// Result is the reconciled scope and what changed.
type Result struct {
	ReconciledScope scope.AnnotationScope `json:"reconciledScope"`
	Summary         Summary               `json:"summary"`
}

// Summary tallies surviving matches and lists dropped ones. Both are
// accumulated per range, so an annotation matched by two ranges counts twice
// in Preserved but is listed once in Removed.
type Summary struct {
	Preserved     annotation.Counts `json:"preserved"`
	Removed       annotation.Set    `json:"removed"`
	RemovedRanges []RemovedRange    `json:"removedRanges,omitempty"`
	// Appeared counts annotations in the new set that the previous snapshot
	// did not have. They are never added to existing ranges.
	Appeared annotation.Counts `json:"appeared"`
}

// RemovedRange names a selection range dropped because nothing in it survived.
type RemovedRange struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Reconcile checks every range of old against newSet. oldSet is the snapshot
// old was built from; it may be nil and only feeds Summary.Appeared.
//
// Losing an annotation is an expected outcome and is reported in the
// summary, never as an error. The only error is a missing newSet.
func Reconcile(old scope.AnnotationScope, oldSet, newSet *annotation.Set) (*Result, error) {
	if newSet == nil {
		return nil, ErrMissingAnnotations
	}
	res := &Result{
		ReconciledScope: scope.AnnotationScope{Mode: old.Mode, Types: old.Types},
	}
	sum := &res.Summary

	for _, r := range old.Ranges {
		kept := reconcileRange(r.MatchedAnnotations, *newSet, sum)
		if kept.Empty() {
			sum.RemovedRanges = append(sum.RemovedRanges, RemovedRange{ID: r.ID, Label: r.Label})
			continue
		}
		sum.Preserved = sum.Preserved.Add(kept.Counts())
		res.ReconciledScope.Ranges = append(res.ReconciledScope.Ranges, r.WithMatches(kept))
	}

	var prev annotation.Set
	if oldSet != nil {
		prev = *oldSet
	}
	sum.Appeared = appeared(prev, *newSet)
	return res, nil
}

func reconcileRange(matched, next annotation.Set, sum *Summary) annotation.Set {
	var kept annotation.Set
	for _, a := range matched.All() {
		switch v := a.(type) {
		case annotation.Comment:
			keepIf(next.HasComment(v), v, &kept, sum)
		case annotation.Highlight:
			keepIf(next.HasHighlight(v), v, &kept, sum)
		case annotation.FullSentenceDeletion:
			keepIf(next.HasFullSentenceDeletion(v), v, &kept, sum)
		case annotation.FullSentenceInsertion:
			keepIf(next.HasFullSentenceInsertion(v), v, &kept, sum)
		case annotation.StructuralChange:
			keepIf(next.HasStructuralChange(v), v, &kept, sum)
		case annotation.WordLevelTrackChange:
			cur, ok := next.Sentence(v)
			if ok && v.SubsetOf(cur) {
				kept.Append(cur.Clone())
			} else {
				recordRemoved(v, sum)
			}
		}
	}
	return kept
}

func keepIf(found bool, a annotation.Annotation, kept *annotation.Set, sum *Summary) {
	if found {
		kept.Append(a)
		return
	}
	recordRemoved(a, sum)
}

func recordRemoved(a annotation.Annotation, sum *Summary) {
	var dup bool
	switch v := a.(type) {
	case annotation.Comment:
		dup = sum.Removed.HasComment(v)
	case annotation.Highlight:
		dup = sum.Removed.HasHighlight(v)
	case annotation.WordLevelTrackChange:
		_, dup = sum.Removed.Sentence(v)
	case annotation.FullSentenceDeletion:
		dup = sum.Removed.HasFullSentenceDeletion(v)
	case annotation.FullSentenceInsertion:
		dup = sum.Removed.HasFullSentenceInsertion(v)
	case annotation.StructuralChange:
		dup = sum.Removed.HasStructuralChange(v)
	}
	if !dup {
		sum.Removed.Append(a)
	}
}

func appeared(prev, next annotation.Set) annotation.Counts {
	var fresh annotation.Set
	for _, a := range next.All() {
		var known bool
		switch v := a.(type) {
		case annotation.Comment:
			known = prev.HasComment(v)
		case annotation.Highlight:
			known = prev.HasHighlight(v)
		case annotation.WordLevelTrackChange:
			old, ok := prev.Sentence(v)
			known = ok && old.SubsetOf(v) && v.SubsetOf(old)
		case annotation.FullSentenceDeletion:
			known = prev.HasFullSentenceDeletion(v)
		case annotation.FullSentenceInsertion:
			known = prev.HasFullSentenceInsertion(v)
		case annotation.StructuralChange:
			known = prev.HasStructuralChange(v)
		}
		if !known {
			fresh.Append(a)
		}
	}
	return fresh.Counts()
}
