package doctree

import (
	"regexp"
	"strconv"
	"strings"
)

var headingNumberRe = regexp.MustCompile(`^(?:(?i:section|clause|article)\s+)?(\d+(?:\.\d+)*)\.?(?:\s+|$)`)

// HeadingNumber splits a leading clause number off a heading or paragraph,
// e.g. "8.2 Payment Terms" -> ("8.2", "Payment Terms").
func HeadingNumber(text string) (string, string) {
	t := strings.TrimSpace(text)
	m := headingNumberRe.FindStringSubmatchIndex(t)
	if m == nil {
		return "", t
	}
	return t[m[2]:m[3]], strings.TrimSpace(t[m[1]:])
}

// AssignNumbers fills empty or duplicate section numbers with hierarchical
// positions ("1", "1.2", ...) derived from the tree shape.
func AssignNumbers(roots []*Node) {
	used := make(map[string]bool)
	var walk func(nodes []*Node, prefix string)
	walk = func(nodes []*Node, prefix string) {
		for i, n := range nodes {
			num := strings.TrimSpace(n.SectionNumber)
			if num == "" || used[num] {
				num = prefix + strconv.Itoa(i+1)
				for used[num] {
					num += "'"
				}
			}
			n.SectionNumber = num
			used[num] = true
			walk(n.Children, num+".")
		}
	}
	walk(roots, "")
}
