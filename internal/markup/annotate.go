package markup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/chunker"
)

// annotate emits the section's records. Offsets are relative to the
// section's own text: paragraph i starts after paragraphs 0..i-1 and their
// newline terminators.
func (s *sectionBuilder) annotate(set *annotation.Set, p *parseState) {
	num := s.node.SectionNumber
	base := 0
	seen := make(map[string]int)
	for _, pb := range s.paras {
		text := string(pb.text)
		for _, m := range pb.marks {
			if m.end <= m.start {
				continue
			}
			selected := string(pb.text[m.start:m.end])
			affected := affectedSentence(pb.text, m.start)
			switch m.typ {
			case markComment:
				p.comments++
				id := m.id
				if id == "" {
					id = fmt.Sprintf("c%d", p.comments)
				}
				set.Comments = append(set.Comments, annotation.Comment{
					ID:               id,
					SectionNumber:    num,
					SelectedText:     selected,
					CommentContent:   m.content,
					Author:           m.author,
					StartOffset:      base + m.start,
					EndOffset:        base + m.end,
					AffectedSentence: affected,
				})
			case markHighlight:
				p.highlights++
				id := m.id
				if id == "" {
					id = fmt.Sprintf("h%d", p.highlights)
				}
				set.Highlights = append(set.Highlights, annotation.Highlight{
					ID:               id,
					SectionNumber:    num,
					SelectedText:     selected,
					Color:            m.color,
					Author:           m.author,
					StartOffset:      base + m.start,
					EndOffset:        base + m.end,
					AffectedSentence: affected,
				})
			}
		}

		for _, sp := range chunker.Sentences(text) {
			s.sentenceChange(set, pb, sp, base, seen)
		}
		base += len(pb.text) + 1
	}
	s.structuralChanges(set)
}

// sentenceChange classifies one sentence: untouched, entirely deleted,
// entirely inserted, or edited word by word. Edited sentences are keyed by
// their original text, so sentences added elsewhere in the section do not
// change the id. seen counts repeats of the same original sentence.
func (s *sectionBuilder) sentenceChange(set *annotation.Set, pb *paraBuilder, sp chunker.Span, base int, seen map[string]int) {
	num := s.node.SectionNumber
	var deleted, added, unchanged int
	for i := sp.Start; i < sp.End; i++ {
		if unicode.IsSpace(pb.text[i]) {
			continue
		}
		switch pb.kinds[i] {
		case annotation.FragmentDeleted:
			deleted++
		case annotation.FragmentAdded:
			added++
		default:
			unchanged++
		}
	}
	if deleted == 0 && added == 0 {
		return
	}

	text := string(pb.text[sp.Start:sp.End])
	span := &annotation.Span{Start: base + sp.Start, End: base + sp.End}
	switch {
	case added == 0 && unchanged == 0:
		set.FullSentenceDeletions = append(set.FullSentenceDeletions, annotation.FullSentenceDeletion{
			ID:            contentID("del", num, text),
			SectionNumber: num,
			DeletedText:   text,
			Span:          span,
		})
		return
	case deleted == 0 && unchanged == 0:
		set.FullSentenceInsertions = append(set.FullSentenceInsertions, annotation.FullSentenceInsertion{
			ID:            contentID("ins", num, text),
			SectionNumber: num,
			InsertedText:  text,
			Span:          span,
		})
		return
	}

	w := annotation.WordLevelTrackChange{
		SectionNumber: num,
		Span:          span,
	}
	var original, amended strings.Builder
	for _, f := range fragments(pb, sp) {
		w.SentenceFragments = append(w.SentenceFragments, annotation.SentenceFragment{Kind: f.kind, Text: f.text})
		edit := annotation.Edit{
			Text:        f.text,
			StartOffset: annotation.IntPtr(f.start - sp.Start),
			EndOffset:   annotation.IntPtr(f.end - sp.Start),
		}
		switch f.kind {
		case annotation.FragmentDeleted:
			w.Deleted = append(w.Deleted, edit)
			original.WriteString(f.text)
		case annotation.FragmentAdded:
			w.Added = append(w.Added, edit)
			amended.WriteString(f.text)
		default:
			original.WriteString(f.text)
			amended.WriteString(f.text)
		}
	}
	w.OriginalSentence = collapse(original.String())
	w.AmendedSentence = collapse(amended.String())
	w.SentenceID = sentenceID(num, w.OriginalSentence, seen)
	set.WordLevelTrackChanges = append(set.WordLevelTrackChanges, w)
}

type fragment struct {
	kind       annotation.FragmentKind
	start, end int
	text       string
}

func fragments(pb *paraBuilder, sp chunker.Span) []fragment {
	var out []fragment
	for i := sp.Start; i < sp.End; {
		j := i
		for j < sp.End && pb.kinds[j] == pb.kinds[i] {
			j++
		}
		out = append(out, fragment{kind: pb.kinds[i], start: i, end: j, text: string(pb.text[i:j])})
		i = j
	}
	return out
}

func (s *sectionBuilder) structuralChanges(set *annotation.Set) {
	num := s.node.SectionNumber
	add := func(t annotation.StructuralChangeType, c annotation.StructuralChange) {
		c.ID = fmt.Sprintf("%s:%s", num, t)
		c.SectionNumber = num
		c.ChangeType = t
		set.StructuralChanges = append(set.StructuralChanges, c)
	}
	if s.renumberedFrom != "" && s.renumberedFrom != num {
		add(annotation.StructuralRenumbered, annotation.StructuralChange{OldNumber: s.renumberedFrom, NewNumber: num})
	}
	if s.headingWas != "" && s.headingWas != s.node.Text {
		add(annotation.StructuralHeadingChanged, annotation.StructuralChange{OldText: s.headingWas, NewText: s.node.Text})
	}
	switch s.change {
	case "inserted":
		add(annotation.StructuralSectionAdded, annotation.StructuralChange{NewText: s.node.Text, NewNumber: num})
	case "deleted":
		add(annotation.StructuralSectionRemoved, annotation.StructuralChange{OldText: s.node.Text, OldNumber: num})
	}
}

func affectedSentence(text []rune, off int) string {
	sp, ok := chunker.SentenceAt(string(text), off)
	if !ok {
		return ""
	}
	return string(text[sp.Start:sp.End])
}

func sentenceID(section, original string, seen map[string]int) string {
	id := section + ":" + contentID("s", section, original)
	seen[id]++
	if n := seen[id]; n > 1 {
		id = fmt.Sprintf("%s-%d", id, n)
	}
	return id
}

func contentID(prefix, section, text string) string {
	sum := sha256.Sum256([]byte(section + "\x00" + text))
	return prefix + "-" + hex.EncodeToString(sum[:6])
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
