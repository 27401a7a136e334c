package reconcile

import (
	"fmt"
	"strings"

	"github.com/dgallion1/annoscope/internal/annotation"
)

// Changed reports whether reconciliation dropped anything.
func (s Summary) Changed() bool {
	return !s.Removed.Empty() || len(s.RemovedRanges) > 0
}

// Describe renders the summary as a short message for the reviewer.
func (s Summary) Describe() string {
	preserved := s.Preserved.Total()
	if !s.Changed() {
		if preserved == 0 {
			return "No selected annotations to reconcile."
		}
		return fmt.Sprintf("All %s in your scope still match the document.", plural(preserved, "selected annotation"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Kept %s; removed %s.", plural(preserved, "annotation"), describeCounts(s.Removed.Counts()))
	switch len(s.RemovedRanges) {
	case 0:
	case 1:
		fmt.Fprintf(&b, " Range %q no longer matches anything and was removed.", s.RemovedRanges[0].Label)
	default:
		labels := make([]string, len(s.RemovedRanges))
		for i, r := range s.RemovedRanges {
			labels[i] = fmt.Sprintf("%q", r.Label)
		}
		fmt.Fprintf(&b, " Ranges %s no longer match anything and were removed.", strings.Join(labels, ", "))
	}
	if n := s.Appeared.Total(); n > 0 {
		fmt.Fprintf(&b, " %s appeared since the last extraction.", capitalize(plural(n, "new annotation")))
	}
	return b.String()
}

func describeCounts(c annotation.Counts) string {
	var parts []string
	add := func(n int, noun string) {
		if n > 0 {
			parts = append(parts, plural(n, noun))
		}
	}
	add(c.Comments, "comment")
	add(c.Highlights, "highlight")
	add(c.WordLevelTrackChanges, "tracked sentence")
	add(c.FullSentenceDeletions, "deleted sentence")
	add(c.FullSentenceInsertions, "inserted sentence")
	add(c.StructuralChanges, "structural change")
	if len(parts) == 0 {
		return "nothing"
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
