// Package markup reads HTML redlines: a section tree plus the comments,
// highlights, tracked changes and structural changes marked up in it.
//
// Conventions:
//
//	<section data-section="4.2">          a numbered section (may nest)
//	<h1>..<h6>                            section headings when no data-section is used
//	<del>, <ins>                          tracked deletions and insertions
//	<span data-comment="text">            a comment on the wrapped text
//	<mark data-color="yellow">            a highlight
//	data-author, data-id                  optional attributes on comments and highlights
//	<p data-change="deleted|inserted">    a whole paragraph deleted or inserted
//	<section data-renumbered-from="5">    structural changes on a section; also
//	data-heading-was, data-change         data-heading-was and data-change
//
// Section text is the redline as displayed: deleted runs stay in the text
// next to inserted runs, so every change has a position.
package markup

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/doctree"
)

// Document is a parsed redline.
type Document struct {
	Title       string
	Roots       []*doctree.Node
	Annotations annotation.Set
}

// Parse reads an HTML redline.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	p := &parseState{explicit: hasAttr(root, "data-section")}
	doc := &Document{Title: findTitle(root)}

	body := findBody(root)
	if body == nil {
		body = root
	}
	p.walk(body, nil)

	for _, s := range p.roots {
		doc.Roots = append(doc.Roots, s.node)
	}
	doctree.AssignNumbers(doc.Roots)
	for _, s := range p.all {
		s.finish()
	}
	for _, s := range p.all {
		s.annotate(&doc.Annotations, p)
	}
	return doc, nil
}

type parseState struct {
	explicit bool
	roots    []*sectionBuilder
	all      []*sectionBuilder

	// heading mode
	stack    []*sectionBuilder
	preamble *sectionBuilder

	comments, highlights int
}

type sectionBuilder struct {
	node  *doctree.Node
	level int
	paras []*paraBuilder

	renumberedFrom string
	headingWas     string
	change         string
}

func (p *parseState) newSection(parent *sectionBuilder, number string, level int) *sectionBuilder {
	s := &sectionBuilder{node: &doctree.Node{SectionNumber: strings.TrimSpace(number)}, level: level}
	if parent == nil {
		p.roots = append(p.roots, s)
	} else {
		parent.node.Children = append(parent.node.Children, s.node)
	}
	p.all = append(p.all, s)
	return s
}

func (p *parseState) walk(n *html.Node, cur *sectionBuilder) {
	if n.Type == html.ElementNode {
		if num, ok := attr(n, "data-section"); ok {
			s := p.newSection(cur, num, 0)
			s.renumberedFrom, _ = attr(n, "data-renumbered-from")
			s.headingWas, _ = attr(n, "data-heading-was")
			s.change, _ = attr(n, "data-change")
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				p.walk(c, s)
			}
			return
		}

		switch n.Data {
		case "script", "style", "nav", "footer", "header":
			return
		}

		if level := headingLevel(n.Data); level > 0 && !p.explicit {
			s := p.openHeading(n, level)
			s.addParagraph(n)
			return
		}

		if isBlock(n.Data) {
			target := cur
			if !p.explicit {
				target = p.current()
			}
			if target != nil {
				target.addParagraph(n)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, cur)
	}
}

// openHeading starts a section at the given heading level, closing deeper
// or equal open sections first.
func (p *parseState) openHeading(n *html.Node, level int) *sectionBuilder {
	for len(p.stack) > 0 && p.stack[len(p.stack)-1].level >= level {
		p.stack = p.stack[:len(p.stack)-1]
	}
	var parent *sectionBuilder
	if len(p.stack) > 0 {
		parent = p.stack[len(p.stack)-1]
	}
	num, _ := doctree.HeadingNumber(textContent(n))
	s := p.newSection(parent, num, level)
	s.renumberedFrom, _ = attr(n, "data-renumbered-from")
	s.headingWas, _ = attr(n, "data-heading-was")
	s.change, _ = attr(n, "data-change")
	p.stack = append(p.stack, s)
	return s
}

// current is the innermost open heading section, or a preamble section for
// text before the first heading.
func (p *parseState) current() *sectionBuilder {
	if len(p.stack) > 0 {
		return p.stack[len(p.stack)-1]
	}
	if p.preamble == nil {
		p.preamble = p.newSection(nil, "0", 0)
	}
	return p.preamble
}

func (s *sectionBuilder) addParagraph(n *html.Node) {
	pb := &paraBuilder{}
	kind := annotation.FragmentUnchanged
	switch v, _ := attr(n, "data-change"); v {
	case "deleted":
		kind = annotation.FragmentDeleted
	case "inserted":
		kind = annotation.FragmentAdded
	}
	pb.walk(n, kind)
	pb.trim()
	if len(pb.text) > 0 {
		s.paras = append(s.paras, pb)
	}
}

// finish copies paragraph text onto the tree node.
func (s *sectionBuilder) finish() {
	for i, pb := range s.paras {
		if i == 0 {
			s.node.Text = string(pb.text)
			continue
		}
		s.node.AdditionalParagraphs = append(s.node.AdditionalParagraphs, string(pb.text))
	}
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "li", "td", "th", "blockquote", "pre", "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	if n.Type == html.ElementNode {
		if _, ok := attr(n, key); ok {
			return true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasAttr(c, key) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
