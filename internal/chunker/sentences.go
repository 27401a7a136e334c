package chunker

import (
	"unicode"
)

// Span is a half-open rune range.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Sentences returns the rune spans of the sentences in text, trimmed of
// surrounding whitespace. A sentence ends at '.', '!' or '?' followed by
// whitespace or end of text, or at a line break.
func Sentences(text string) []Span {
	runes := []rune(text)
	var out []Span
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		for end > start && unicode.IsSpace(runes[end-1]) {
			end--
		}
		if end > start {
			out = append(out, Span{start, end})
		}
		start = -1
	}

	for i, r := range runes {
		if r == '\n' {
			flush(i)
			continue
		}
		if start < 0 {
			if unicode.IsSpace(r) {
				continue
			}
			start = i
		}
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			flush(i + 1)
		}
	}
	flush(len(runes))
	return out
}

// SentenceAt returns the sentence containing rune offset off.
func SentenceAt(text string, off int) (Span, bool) {
	for _, sp := range Sentences(text) {
		if sp.Start <= off && off < sp.End {
			return sp, true
		}
	}
	return Span{}, false
}
