package normalizers

import (
	"regexp"
	"strings"
)

var (
	parenSpanRe  = regexp.MustCompile(`\([^)]*\)`)
	parenInnerRe = regexp.MustCompile(`\(([^)]+)\)`)
)

// GenerateCandidates expands a normalized ingredient into its lookup candidates, in order: the
// input itself, the input without parenthesized spans, then the text of each span. Duplicates keep
// their first position.
func GenerateCandidates(normalized string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(normalized)
	add(collapse(parenSpanRe.ReplaceAllString(normalized, " ")))
	for _, m := range parenInnerRe.FindAllStringSubmatch(normalized, -1) {
		add(strings.TrimSpace(m[1]))
	}
	return out
}
