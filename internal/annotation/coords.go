package annotation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/annoscope/internal/doctree"
)

// Offsets live in three spaces: sentence-relative (Edit), section-relative
// (records and Span) and combined-document. Each crossing has exactly one
// function below; nothing else adds offsets from different spaces.

// SentenceToSection translates a sentence-relative offset into the section
// space, given the sentence's section-relative span.
func SentenceToSection(sentence Span, offset int) (int, bool) {
	if offset < 0 || offset > sentence.End-sentence.Start {
		return 0, false
	}
	return sentence.Start + offset, true
}

// SentenceSpan resolves where w's sentence sits in its section's own text:
// the extractor-provided span if present, otherwise the first occurrence of
// the amended, then the original, sentence.
func SentenceSpan(w WordLevelTrackChange, s *doctree.Structure) (Span, bool) {
	if w.Span != nil {
		return *w.Span, w.Span.End >= w.Span.Start
	}
	for _, text := range []string{w.AmendedSentence, w.OriginalSentence} {
		if text == "" {
			continue
		}
		if off, ok := s.FindInSection(w.SectionNumber, text); ok {
			return Span{Start: off, End: off + utf8.RuneCountInString(text)}, true
		}
	}
	return Span{}, false
}

// EditSpan resolves a sentence-relative edit into the section space.
// Edits without offsets are located by their text inside the sentence.
func EditSpan(w WordLevelTrackChange, e Edit, sentence Span, s *doctree.Structure) (Span, bool) {
	var start, end int
	switch {
	case e.StartOffset != nil:
		start = *e.StartOffset
		end = start + utf8.RuneCountInString(e.Text)
		if e.EndOffset != nil {
			end = *e.EndOffset
		}
	default:
		cs, ce, ok := s.SectionSpanToCombined(w.SectionNumber, sentence.Start, sentence.End)
		if !ok {
			return Span{}, false
		}
		text := s.Slice(cs, ce)
		i := strings.Index(text, e.Text)
		if e.Text == "" || i < 0 {
			return Span{}, false
		}
		start = utf8.RuneCountInString(text[:i])
		end = start + utf8.RuneCountInString(e.Text)
	}
	if end < start {
		return Span{}, false
	}
	ss, ok := SentenceToSection(sentence, start)
	if !ok {
		return Span{}, false
	}
	se, ok := SentenceToSection(sentence, end)
	if !ok {
		return Span{}, false
	}
	return Span{Start: ss, End: se}, true
}

// CombinedSpan resolves any annotation into the combined-document space.
func CombinedSpan(a Annotation, s *doctree.Structure) (Span, bool) {
	var local Span
	switch v := a.(type) {
	case Comment:
		local = Span{v.StartOffset, v.EndOffset}
	case Highlight:
		local = Span{v.StartOffset, v.EndOffset}
	case WordLevelTrackChange:
		sp, ok := SentenceSpan(v, s)
		if !ok {
			return Span{}, false
		}
		local = sp
	case FullSentenceDeletion:
		sp, ok := locateText(v.SectionNumber, v.DeletedText, v.Span, s)
		if !ok {
			return Span{}, false
		}
		local = sp
	case FullSentenceInsertion:
		sp, ok := locateText(v.SectionNumber, v.InsertedText, v.Span, s)
		if !ok {
			return Span{}, false
		}
		local = sp
	case StructuralChange:
		n, ok := s.Section(v.SectionNumber)
		if !ok {
			return Span{}, false
		}
		local = Span{0, n.OwnLen()}
	default:
		panic(fmt.Sprintf("annotation: unhandled variant %T", a))
	}
	return SectionToCombined(a.Section(), local, s)
}

// SectionToCombined translates a section-relative span.
func SectionToCombined(section string, sp Span, s *doctree.Structure) (Span, bool) {
	start, end, ok := s.SectionSpanToCombined(section, sp.Start, sp.End)
	if !ok {
		return Span{}, false
	}
	return Span{Start: start, End: end}, true
}

func locateText(section, text string, sp *Span, s *doctree.Structure) (Span, bool) {
	if sp != nil {
		return *sp, true
	}
	off, ok := s.FindInSection(section, text)
	if !ok {
		return Span{}, false
	}
	return Span{Start: off, End: off + utf8.RuneCountInString(text)}, true
}
