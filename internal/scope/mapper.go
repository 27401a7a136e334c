package scope

import (
	"github.com/dgallion1/annoscope/internal/doctree"
)

// MapSelectionToSections reports every section intersected by the
// combined-document interval [start, end), in document order.
//
// A section whose whole combined range is selected is reported once with
// IsFullyCovered set; its descendants are not repeated. A partially
// selected section reports the selected part of its own text and the walk
// continues into its children. A caret (start == end) is attributed to the
// section whose own text contains it, so a caret on a boundary belongs to
// the trailing section.
func MapSelectionToSections(start, end int, s *doctree.Structure) []SectionCoverage {
	if end < start {
		start, end = end, start
	}
	var out []SectionCoverage
	var walk func(n *doctree.Node)
	walk = func(n *doctree.Node) {
		if !intersects(n.StartOffset, n.EndOffset, start, end) {
			return
		}
		if start < end && start <= n.StartOffset && end >= n.EndOffset {
			out = append(out, coverage(n, 0, n.Len(), s))
			return
		}
		own := n.OwnLen()
		if own > 0 && intersects(n.StartOffset, n.StartOffset+own, start, end) {
			from := max(0, start-n.StartOffset)
			to := min(own, end-n.StartOffset)
			out = append(out, coverage(n, from, to, s))
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range s.Roots {
		walk(r)
	}
	return out
}

// intersects tests [a, b) against the selection [start, end). An empty
// selection intersects the range that contains its position.
func intersects(a, b, start, end int) bool {
	if a == b {
		return false
	}
	if start == end {
		return a <= start && start < b
	}
	return a < end && start < b
}

// coverage measures [from, to) against the whole section, children
// included, so a branch whose own text is selected but whose children are
// not still shows an ellipsis after.
func coverage(n *doctree.Node, from, to int, s *doctree.Structure) SectionCoverage {
	return SectionCoverage{
		SectionNumber:     n.SectionNumber,
		StartInSection:    from,
		EndInSection:      to,
		Length:            to - from,
		IsFullyCovered:    from == 0 && to == n.Len(),
		HasEllipsisBefore: from > 0,
		HasEllipsisAfter:  to < n.Len(),
		SelectedText:      s.Slice(n.StartOffset+from, n.StartOffset+to),
	}
}
