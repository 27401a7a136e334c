package markup

import (
	"unicode"

	"golang.org/x/net/html"

	"github.com/dgallion1/annoscope/internal/annotation"
)

// paraBuilder accumulates one paragraph's displayed text with the change
// kind of every rune and the ranges of comment and highlight marks.
type paraBuilder struct {
	text  []rune
	kinds []annotation.FragmentKind
	marks []mark
}

type markType int

const (
	markComment markType = iota
	markHighlight
)

type mark struct {
	typ        markType
	start, end int
	id         string
	content    string
	author     string
	color      string
}

func (pb *paraBuilder) walk(n *html.Node, kind annotation.FragmentKind) {
	switch n.Type {
	case html.TextNode:
		pb.write(n.Data, kind)
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style":
			return
		case "br":
			pb.write(" ", kind)
			return
		case "del", "s", "strike":
			kind = annotation.FragmentDeleted
		case "ins":
			kind = annotation.FragmentAdded
		}
		switch v, _ := attr(n, "data-change"); v {
		case "deleted":
			kind = annotation.FragmentDeleted
		case "inserted":
			kind = annotation.FragmentAdded
		}

		var m *mark
		if content, ok := attr(n, "data-comment"); ok {
			m = &mark{typ: markComment, content: content}
		} else if n.Data == "mark" {
			color, ok := attr(n, "data-color")
			if !ok || color == "" {
				color = "yellow"
			}
			m = &mark{typ: markHighlight, color: color}
		}
		if m != nil {
			m.id, _ = attr(n, "data-id")
			m.author, _ = attr(n, "data-author")
			m.start = len(pb.text)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			pb.walk(c, kind)
		}
		if m != nil {
			m.end = len(pb.text)
			pb.marks = append(pb.marks, *m)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		pb.walk(c, kind)
	}
}

// write appends s with whitespace runs collapsed to one space and no
// leading space.
func (pb *paraBuilder) write(s string, kind annotation.FragmentKind) {
	for _, r := range s {
		if unicode.IsSpace(r) {
			if len(pb.text) == 0 || pb.text[len(pb.text)-1] == ' ' {
				continue
			}
			r = ' '
		}
		pb.text = append(pb.text, r)
		pb.kinds = append(pb.kinds, kind)
	}
}

// trim drops a trailing space and clamps marks to the remaining text.
func (pb *paraBuilder) trim() {
	if n := len(pb.text); n > 0 && pb.text[n-1] == ' ' {
		pb.text = pb.text[:n-1]
		pb.kinds = pb.kinds[:n-1]
	}
	for i := range pb.marks {
		pb.marks[i].start = min(pb.marks[i].start, len(pb.text))
		pb.marks[i].end = min(pb.marks[i].end, len(pb.text))
	}
}
