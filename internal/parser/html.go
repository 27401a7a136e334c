package parser

import (
	"io"

	"github.com/dgallion1/annoscope/internal/markup"
)

// HTMLParser handles HTML files, including redlines with tracked changes,
// comments and highlights.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*Document, error) {
	doc, err := markup.Parse(r)
	if err != nil {
		return nil, err
	}
	title := doc.Title
	if title == "" {
		title = titleFrom(filename)
	}
	return &Document{Title: title, Roots: doc.Roots, Annotations: &doc.Annotations}, nil
}
