package doctree

import (
	"strings"
	"unicode/utf8"
)

// SectionToCombined translates an offset relative to a section's own text
// into the combined-document coordinate space. Offsets beyond the section's
// own text are rejected.
func (s *Structure) SectionToCombined(sectionNumber string, offset int) (int, bool) {
	n, ok := s.Section(sectionNumber)
	if !ok || offset < 0 || offset > n.OwnLen() {
		return 0, false
	}
	return n.StartOffset + offset, true
}

// SectionSpanToCombined translates a half-open section-relative span.
func (s *Structure) SectionSpanToCombined(sectionNumber string, start, end int) (int, int, bool) {
	if end < start {
		return 0, 0, false
	}
	cs, ok := s.SectionToCombined(sectionNumber, start)
	if !ok {
		return 0, 0, false
	}
	ce, ok := s.SectionToCombined(sectionNumber, end)
	if !ok {
		return 0, 0, false
	}
	return cs, ce, true
}

// FindInSection returns the rune offset of the first occurrence of text in
// the section's own text.
func (s *Structure) FindInSection(sectionNumber, text string) (int, bool) {
	n, ok := s.Section(sectionNumber)
	if !ok || text == "" {
		return 0, false
	}
	own := n.OwnText()
	i := strings.Index(own, text)
	if i < 0 {
		return 0, false
	}
	return utf8.RuneCountInString(own[:i]), true
}
