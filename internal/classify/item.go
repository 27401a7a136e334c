package classify

import (
	"fmt"
	"strings"

	"github.com/dgallion1/annoscope/internal/annotation"
)

// Item is one annotation rendered as a line of prompt text.
type Item struct {
	Ref  annotation.Ref
	Text string
}

// Items renders every annotation in the set, in Set.All order.
func Items(set *annotation.Set) []Item {
	if set == nil {
		return nil
	}
	all := set.All()
	items := make([]Item, 0, len(all))
	for _, a := range all {
		items = append(items, Item{Ref: a.Ref(), Text: describe(a)})
	}
	return items
}

func describe(a annotation.Annotation) string {
	switch v := a.(type) {
	case annotation.Comment:
		return fmt.Sprintf("comment on %q: %s", v.SelectedText, v.CommentContent)
	case annotation.Highlight:
		return fmt.Sprintf("%s highlight on %q", v.Color, v.SelectedText)
	case annotation.WordLevelTrackChange:
		return fmt.Sprintf("edit %q -> %q", v.OriginalSentence, v.AmendedSentence)
	case annotation.FullSentenceDeletion:
		return fmt.Sprintf("deleted sentence %q", v.DeletedText)
	case annotation.FullSentenceInsertion:
		return fmt.Sprintf("inserted sentence %q", v.InsertedText)
	case annotation.StructuralChange:
		var parts []string
		if v.OldNumber != "" || v.NewNumber != "" {
			parts = append(parts, fmt.Sprintf("number %q -> %q", v.OldNumber, v.NewNumber))
		}
		if v.OldText != "" || v.NewText != "" {
			parts = append(parts, fmt.Sprintf("heading %q -> %q", v.OldText, v.NewText))
		}
		return fmt.Sprintf("structural change %s %s", v.ChangeType, strings.Join(parts, ", "))
	default:
		panic(fmt.Sprintf("classify: unknown annotation %T", a))
	}
}
