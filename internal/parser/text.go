package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text files. Paragraphs are separated by blank
// lines; numbered paragraphs open sections.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var o outline
	for _, para := range paragraphs {
		if !o.clause(para) {
			o.paragraph(para)
		}
	}
	return &Document{Title: titleFrom(filename), Roots: o.result()}, nil
}
