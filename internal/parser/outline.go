package parser

import (
	"strings"
	"unicode"

	"github.com/dgallion1/annoscope/internal/doctree"
)

// outline builds a section tree from a flat stream of headings and
// paragraphs. Headings open sections by level; paragraphs attach to the
// innermost open section, or to a preamble section "0" before the first
// heading. Unnumbered sections are numbered by position at the end.
type outline struct {
	roots    []*doctree.Node
	stack    []outlineEntry
	preamble *doctree.Node
}

type outlineEntry struct {
	node  *doctree.Node
	level int
}

func (o *outline) heading(level int, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	num, _ := doctree.HeadingNumber(text)
	n := &doctree.Node{SectionNumber: num, Text: text}

	// Pop stack until we find a parent with lower level.
	for len(o.stack) > 0 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	if len(o.stack) == 0 {
		o.roots = append(o.roots, n)
	} else {
		parent := o.stack[len(o.stack)-1].node
		parent.Children = append(parent.Children, n)
	}
	o.stack = append(o.stack, outlineEntry{node: n, level: level})
}

func (o *outline) paragraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	var target *doctree.Node
	if len(o.stack) > 0 {
		target = o.stack[len(o.stack)-1].node
	} else {
		if o.preamble == nil {
			o.preamble = &doctree.Node{SectionNumber: "0"}
			o.roots = append(o.roots, o.preamble)
		}
		target = o.preamble
	}
	if target.Text == "" {
		target.Text = text
		return
	}
	target.AdditionalParagraphs = append(target.AdditionalParagraphs, text)
}

// clause opens a section for a numbered body paragraph ("4.2 The buyer...")
// nested by the depth of its number. It reports false for paragraphs that
// do not start with a clause number.
func (o *outline) clause(text string) bool {
	num, ok := clauseNumber(text)
	if !ok {
		return false
	}
	o.heading(strings.Count(num, ".")+1, text)
	return true
}

func (o *outline) result() []*doctree.Node {
	doctree.AssignNumbers(o.roots)
	return o.roots
}

// clauseNumber accepts "4.2 ...", "4. ..." and "Section 4 ..." but not a bare
// leading number such as a year.
func clauseNumber(text string) (string, bool) {
	t := strings.TrimSpace(text)
	num, _ := doctree.HeadingNumber(t)
	if num == "" {
		return "", false
	}
	if !unicode.IsDigit(rune(t[0])) || strings.Contains(num, ".") || strings.HasPrefix(t[len(num):], ".") {
		return num, true
	}
	return "", false
}
