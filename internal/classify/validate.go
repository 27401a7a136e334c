package classify

import (
	"regexp"
	"strings"
)

// Label is a classification category.
type Label string

const (
	LabelSubstantive Label = "substantive"
	LabelEditorial   Label = "editorial"
	LabelQuestion    Label = "question"
	LabelRisk        Label = "risk"
	LabelInstruction Label = "instruction"
	LabelNote        Label = "note"
)

var validLabels = map[Label]bool{
	LabelSubstantive: true,
	LabelEditorial:   true,
	LabelQuestion:    true,
	LabelRisk:        true,
	LabelInstruction: true,
	LabelNote:        true,
}

// rawClassification is one element of the model's JSON array.
type rawClassification struct {
	Item       int     `json:"item"`
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|override|` +
		`new\s+instructions)`,
)

// validateClassification checks one answer against a batch of n items.
// Returns true if valid; the rationale is cleaned in place.
func validateClassification(c *rawClassification, n int) bool {
	if c == nil {
		return false
	}
	if c.Item < 1 || c.Item > n {
		return false
	}
	c.Label = Label(strings.ToLower(strings.TrimSpace(string(c.Label))))
	if !validLabels[c.Label] {
		return false
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return false
	}
	c.Rationale = strings.TrimSpace(c.Rationale)
	if injectionPattern.MatchString(c.Rationale) {
		c.Rationale = ""
	}
	if r := []rune(c.Rationale); len(r) > 300 {
		c.Rationale = string(r[:300])
	}
	return true
}
