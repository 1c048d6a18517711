package normalizers

import (
	"regexp"
	"strings"
)

var (
	newlineRe       = regexp.MustCompile(`\r?\n`)
	listSeparatorRe = regexp.MustCompile(`[;|•·、・]`)
)

// SplitIngredients splits a raw ingredient declaration into labels. Commas split only outside
// (), [] and {} and never between two digits, so "1,2-Hexanediol" stays whole.
func SplitIngredients(raw string) []string {
	if raw == "" {
		return nil
	}

	s := newlineRe.ReplaceAllString(raw, ",")
	s = listSeparatorRe.ReplaceAllString(s, ",")
	s = collapse(s)

	chars := []rune(s)
	var (
		parts                    []string
		buf                      strings.Builder
		parens, brackets, braces int
	)

	flush := func() {
		if token := cleanToken(buf.String()); token != "" {
			parts = append(parts, token)
		}
		buf.Reset()
	}

	for i, ch := range chars {
		switch ch {
		case '(':
			parens++
		case ')':
			parens = max(0, parens-1)
		case '[':
			brackets++
		case ']':
			brackets = max(0, brackets-1)
		case '{':
			braces++
		case '}':
			braces = max(0, braces-1)
		}

		if ch == ',' && parens == 0 && brackets == 0 && braces == 0 {
			if i > 0 && i+1 < len(chars) && isDigit(chars[i-1]) && isDigit(chars[i+1]) {
				buf.WriteRune(ch)
				continue
			}
			flush()
			continue
		}

		buf.WriteRune(ch)
	}
	flush()

	return parts
}

func cleanToken(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), ","))
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// JoinIngredients renders a label list the way SplitIngredients reads it back.
func JoinIngredients(labels []string) string {
	return strings.Join(labels, ", ")
}
