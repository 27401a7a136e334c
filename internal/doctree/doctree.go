package doctree

import (
	"strings"
	"unicode/utf8"
)

// Node is a numbered section in the document tree.
type Node struct {
	SectionNumber        string   `json:"sectionNumber"`
	Text                 string   `json:"text"`
	AdditionalParagraphs []string `json:"additionalParagraphs,omitempty"`
	Children             []*Node  `json:"children,omitempty"`

	// Half-open span of the node's combined text in the combined document.
	StartOffset int `json:"startOffset"`
	EndOffset   int `json:"endOffset"`
}

// OwnText returns the node's own paragraphs, each terminated by a newline.
// Children are not included.
func (n *Node) OwnText() string {
	var sb strings.Builder
	for _, p := range n.paragraphs() {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// CombinedText returns the node's own text followed by its children's combined text.
func (n *Node) CombinedText() string {
	var sb strings.Builder
	n.writeCombined(&sb)
	return sb.String()
}

func (n *Node) writeCombined(sb *strings.Builder) {
	sb.WriteString(n.OwnText())
	for _, c := range n.Children {
		c.writeCombined(sb)
	}
}

// Len is the node's span length in runes.
func (n *Node) Len() int {
	return n.EndOffset - n.StartOffset
}

// OwnLen is the rune length of the node's own text.
func (n *Node) OwnLen() int {
	return utf8.RuneCountInString(n.OwnText())
}

// TopLevel returns the leading component of a section number,
// e.g. "8" for "8.2.2.1".
func TopLevel(sectionNumber string) string {
	s := strings.TrimSpace(sectionNumber)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

func (n *Node) paragraphs() []string {
	out := make([]string, 0, 1+len(n.AdditionalParagraphs))
	if n.Text != "" {
		out = append(out, n.Text)
	}
	for _, p := range n.AdditionalParagraphs {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
