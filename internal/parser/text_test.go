package parser

import (
	"strings"
	"testing"
)

func TestTextParser_NumberedClausesOpenSections(t *testing.T) {
	input := `Supply Agreement

1. Definitions
In this Agreement the following terms apply.

1.1 "Goods" means the products listed
in Schedule 1.

2. Payment

2.1 The buyer shall pay within thirty days.

In 2024 prices are fixed.`
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(input), "supply.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Title != "supply" {
		t.Errorf("expected title %q, got %q", "supply", doc.Title)
	}
	if len(doc.Roots) != 3 {
		t.Fatalf("expected preamble plus 2 sections, got %d", len(doc.Roots))
	}
	if doc.Roots[0].SectionNumber != "0" || doc.Roots[0].Text != "Supply Agreement" {
		t.Errorf("unexpected preamble %+v", doc.Roots[0])
	}

	defs := doc.Roots[1]
	if defs.SectionNumber != "1" || defs.Text != "1. Definitions In this Agreement the following terms apply." {
		t.Errorf("unexpected section 1 %q %q", defs.SectionNumber, defs.Text)
	}
	if len(defs.Children) != 1 || defs.Children[0].SectionNumber != "1.1" {
		t.Fatalf("expected 1.1 under 1, got %+v", defs.Children)
	}
	if defs.Children[0].Text != `1.1 "Goods" means the products listed in Schedule 1.` {
		t.Errorf("expected wrapped lines to be joined, got %q", defs.Children[0].Text)
	}

	pay := doc.Roots[2]
	if len(pay.Children) != 1 {
		t.Fatalf("expected 2.1 under 2, got %+v", pay.Children)
	}
	clause := pay.Children[0]
	if len(clause.AdditionalParagraphs) != 1 || clause.AdditionalParagraphs[0] != "In 2024 prices are fixed." {
		t.Errorf("expected unnumbered paragraph to stay in 2.1, got %+v", clause.AdditionalParagraphs)
	}
}

func TestTextParser_EmptyInput(t *testing.T) {
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(""), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "empty" {
		t.Errorf("expected title %q, got %q", "empty", doc.Title)
	}
	if len(doc.Roots) != 0 {
		t.Errorf("expected 0 sections for empty input, got %d", len(doc.Roots))
	}
}

func TestTextParser_UnnumberedTextIsOnePreamble(t *testing.T) {
	input := "Para one.\n\n\n\nPara two.\n   \nPara three."
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(input), "gaps.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Roots) != 1 {
		t.Fatalf("expected 1 section, got %d", len(doc.Roots))
	}
	if got := len(doc.Roots[0].AdditionalParagraphs); got != 2 {
		t.Errorf("expected 2 additional paragraphs, got %d", got)
	}
}

func TestClauseNumber(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"4.2 The buyer shall pay.", "4.2", true},
		{"4. Payment", "4", true},
		{"Section 7 Termination", "7", true},
		{"Clause 12.3", "12.3", true},
		{"2024 was a good year.", "", false},
		{"Payment terms", "", false},
	}
	for _, tc := range tests {
		got, ok := clauseNumber(tc.text)
		if got != tc.want || ok != tc.ok {
			t.Errorf("clauseNumber(%q): expected (%q,%v), got (%q,%v)", tc.text, tc.want, tc.ok, got, ok)
		}
	}
}

func TestForFile(t *testing.T) {
	for _, name := range []string{"a.txt", "b.MD", "c.html", "d.pdf", "e.docx"} {
		if _, err := ForFile(name, Options{}); err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
	}
	if _, err := ForFile("sheet.csv", Options{}); err == nil {
		t.Error("expected csv to be unsupported")
	}
	if p, _ := ForFile("x.pdf", Options{PDFFallbackPdftotext: true}); !p.(*PDFParser).FallbackPdftotext {
		t.Error("expected pdf fallback option to be passed through")
	}
}

func TestPDFParagraphs(t *testing.T) {
	text := "MASTER AGREEMENT\n\n1. Scope\nThe supplier delivers\ngoods.\f2. Price\n  Fixed   for one year.\n"
	got := pdfParagraphs(text)
	want := []string{
		"MASTER AGREEMENT",
		"1. Scope The supplier delivers goods.",
		"2. Price Fixed for one year.",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %q, got %q", want, got)
	}
}
