package doctree

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Structure is a built document tree plus the combined document string that
// every offset in the system is measured against.
type Structure struct {
	Title string
	Roots []*Node

	combined []rune
	index    map[string]*Node
	order    []*Node
}

// StructuralConsistencyError reports section ranges that cannot form a valid tree.
type StructuralConsistencyError struct {
	SectionNumber string
	Reason        string
}

func (e *StructuralConsistencyError) Error() string {
	if e.SectionNumber == "" {
		return "structural consistency: " + e.Reason
	}
	return fmt.Sprintf("structural consistency: section %q: %s", e.SectionNumber, e.Reason)
}

func inconsistent(section, format string, args ...any) *StructuralConsistencyError {
	return &StructuralConsistencyError{SectionNumber: section, Reason: fmt.Sprintf(format, args...)}
}

// Build deep-copies roots, assigns offsets in document order and returns the
// immutable structure. Offsets already present on the input are ignored.
func Build(title string, roots []*Node) (*Structure, error) {
	s := &Structure{
		Title: title,
		index: make(map[string]*Node),
	}
	var sb strings.Builder
	cursor := 0

	var place func(n *Node) (*Node, error)
	place = func(n *Node) (*Node, error) {
		num := strings.TrimSpace(n.SectionNumber)
		if num == "" {
			return nil, inconsistent("", "section without a number (text %q)", truncate(n.Text, 40))
		}
		if _, dup := s.index[num]; dup {
			return nil, inconsistent(num, "duplicate section number")
		}
		cp := &Node{
			SectionNumber:        num,
			Text:                 n.Text,
			AdditionalParagraphs: append([]string(nil), n.AdditionalParagraphs...),
			StartOffset:          cursor,
		}
		s.index[num] = cp
		s.order = append(s.order, cp)

		own := cp.OwnText()
		sb.WriteString(own)
		cursor += utf8.RuneCountInString(own)

		for _, c := range n.Children {
			child, err := place(c)
			if err != nil {
				return nil, err
			}
			cp.Children = append(cp.Children, child)
		}
		cp.EndOffset = cursor
		return cp, nil
	}

	for _, r := range roots {
		n, err := place(r)
		if err != nil {
			return nil, err
		}
		s.Roots = append(s.Roots, n)
	}
	s.combined = []rune(sb.String())
	return s, nil
}

// Fragment is a section's own text positioned by an external parser.
type Fragment struct {
	SectionNumber string `json:"sectionNumber"`
	Text          string `json:"text"`
	StartOffset   int    `json:"startOffset"`
	EndOffset     int    `json:"endOffset"`
}

// FromFragments assembles a structure from externally positioned fragments.
// Fragments must arrive in document order (pre-order), tile the combined
// document without gaps or overlaps, and nest by section-number prefix.
func FromFragments(title string, frags []Fragment) (*Structure, error) {
	var roots []*Node
	var stack []*Node
	seen := make(map[string]bool, len(frags))
	cursor := 0

	for _, f := range frags {
		num := strings.TrimSpace(f.SectionNumber)
		if num == "" {
			return nil, inconsistent("", "fragment at offset %d has no section number", f.StartOffset)
		}
		if seen[num] {
			return nil, inconsistent(num, "duplicate section number")
		}
		seen[num] = true
		switch {
		case f.EndOffset < f.StartOffset:
			return nil, inconsistent(num, "end offset %d before start offset %d", f.EndOffset, f.StartOffset)
		case f.StartOffset < cursor:
			return nil, inconsistent(num, "fragment [%d,%d) overlaps previous fragment ending at %d", f.StartOffset, f.EndOffset, cursor)
		case f.StartOffset > cursor:
			return nil, inconsistent(num, "gap between offset %d and fragment start %d", cursor, f.StartOffset)
		}
		if l := utf8.RuneCountInString(f.Text); l != f.EndOffset-f.StartOffset {
			return nil, inconsistent(num, "fragment text length %d does not match range [%d,%d)", l, f.StartOffset, f.EndOffset)
		}

		node := nodeFromOwnText(num, f.Text)
		if node.OwnText() != f.Text {
			return nil, inconsistent(num, "fragment text is not newline-terminated paragraphs")
		}
		cursor = f.EndOffset

		for len(stack) > 0 && !isAncestor(stack[len(stack)-1].SectionNumber, num) {
			stack = stack[:len(stack)-1]
		}
		if anc := nearestSeenAncestor(num, seen); anc != "" && (len(stack) == 0 || stack[len(stack)-1].SectionNumber != anc) {
			return nil, inconsistent(num, "fragment appears after its parent %q was closed", anc)
		}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			top.Children = append(top.Children, node)
		} else {
			roots = append(roots, node)
		}
		stack = append(stack, node)
	}

	s, err := Build(title, roots)
	if err != nil {
		return nil, err
	}
	return s, s.Validate()
}

func nodeFromOwnText(num, text string) *Node {
	n := &Node{SectionNumber: num}
	paras := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if len(paras) > 0 {
		n.Text = paras[0]
		if len(paras) > 1 {
			n.AdditionalParagraphs = paras[1:]
		}
	}
	return n
}

func parentNumber(num string) string {
	if i := strings.LastIndexByte(num, '.'); i > 0 {
		return num[:i]
	}
	return ""
}

func nearestSeenAncestor(num string, seen map[string]bool) string {
	for p := parentNumber(num); p != ""; p = parentNumber(p) {
		if seen[p] {
			return p
		}
	}
	return ""
}

func isAncestor(anc, num string) bool {
	return strings.HasPrefix(num, anc+".")
}

// Validate re-checks the offset invariants of every node.
func (s *Structure) Validate() error {
	cursor := 0
	seen := make(map[string]bool, len(s.order))
	var check func(n *Node, parent *Node) error
	check = func(n *Node, parent *Node) error {
		if seen[n.SectionNumber] {
			return inconsistent(n.SectionNumber, "duplicate section number")
		}
		seen[n.SectionNumber] = true
		if n.StartOffset != cursor {
			return inconsistent(n.SectionNumber, "start offset %d, expected %d", n.StartOffset, cursor)
		}
		if parent != nil && (n.StartOffset < parent.StartOffset || n.EndOffset > parent.EndOffset) {
			return inconsistent(n.SectionNumber, "range [%d,%d) escapes parent %q [%d,%d)",
				n.StartOffset, n.EndOffset, parent.SectionNumber, parent.StartOffset, parent.EndOffset)
		}
		cursor += n.OwnLen()
		for _, c := range n.Children {
			if err := check(c, n); err != nil {
				return err
			}
		}
		if n.EndOffset != cursor {
			return inconsistent(n.SectionNumber, "end offset %d, expected %d", n.EndOffset, cursor)
		}
		return nil
	}
	for _, r := range s.Roots {
		if err := check(r, nil); err != nil {
			return err
		}
	}
	if cursor != len(s.combined) {
		return inconsistent("", "sections cover %d runes, combined document has %d", cursor, len(s.combined))
	}
	return nil
}

// Combined returns the combined document string.
func (s *Structure) Combined() string {
	return string(s.combined)
}

// Len is the combined document length in runes.
func (s *Structure) Len() int {
	return len(s.combined)
}

// Slice returns combined[start:end), clamped to the document.
func (s *Structure) Slice(start, end int) string {
	start = max(start, 0)
	end = min(end, len(s.combined))
	if start >= end {
		return ""
	}
	return string(s.combined[start:end])
}

// Section looks up a node by section number.
func (s *Structure) Section(number string) (*Node, bool) {
	n, ok := s.index[strings.TrimSpace(number)]
	return n, ok
}

// Sections returns every node in document (pre-)order.
func (s *Structure) Sections() []*Node {
	return s.order
}

type structureJSON struct {
	Title        string  `json:"title,omitempty"`
	CombinedText string  `json:"combinedText"`
	Sections     []*Node `json:"sections"`
}

func (s *Structure) MarshalJSON() ([]byte, error) {
	return json.Marshal(structureJSON{
		Title:        s.Title,
		CombinedText: s.Combined(),
		Sections:     s.Roots,
	})
}

// UnmarshalJSON rebuilds the structure from its sections; offsets and the
// combined text in the payload are recomputed rather than trusted.
func (s *Structure) UnmarshalJSON(data []byte) error {
	var raw structureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := Build(raw.Title, raw.Sections)
	if err != nil {
		return err
	}
	if raw.CombinedText != "" && raw.CombinedText != built.Combined() {
		return inconsistent("", "combined text does not match section texts")
	}
	*s = *built
	return nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
