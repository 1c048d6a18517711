// Package normalizers holds the text transforms that turn raw label text into catalog lookup keys.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

func init() {
	Register("ningredient", NormalizeIngredient)
	Register("nlabel", NormalizeLabel)
	Register("nname", NormalizeName)
	Register("uppercase", strings.ToUpper)
	Register("trim", strings.TrimSpace)
	Register("strip_diacritics", StripDiacritics)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value untouched.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// combining diacritical marks block
var diacritics = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
}

var (
	whitespaceRe = regexp.MustCompile(`[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)

	ingredientSeparatorRe = regexp.MustCompile(`[•·;]`)
	commaSpacingRe        = regexp.MustCompile(`\s*,\s*`)
	dashRe                = regexp.MustCompile(`[–—]`)
	ingredientDisallowRe  = regexp.MustCompile(`[^A-Za-z0-9_()/\-\s,]`)

	parenRe         = regexp.MustCompile(`[()]`)
	labelDisallowRe = regexp.MustCompile(`[^A-Za-z0-9\s\-/]`)
)

// StripDiacritics applies compatibility decomposition and drops the combining marks, so "Ä" and
// "ﬁ" become "A" and "fi".
func StripDiacritics(s string) string {
	// transformers carry state, one chain per call keeps this safe for concurrent use
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(diacritics)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// NormalizeIngredient is the matching form of a label: separators folded to commas, punctuation
// outside ()/- dropped, whitespace collapsed, uppercase.
func NormalizeIngredient(s string) string {
	s = StripDiacritics(s)
	s = ingredientSeparatorRe.ReplaceAllString(s, ",")
	s = commaSpacingRe.ReplaceAllString(s, ",")
	s = dashRe.ReplaceAllString(s, "-")
	s = ingredientDisallowRe.ReplaceAllString(s, " ")
	return strings.ToUpper(collapse(s))
}

// NormalizeLabel is the key form of a label. Match records and aliases are keyed on it.
func NormalizeLabel(s string) string {
	s = StripDiacritics(s)
	s = parenRe.ReplaceAllString(s, " ")
	s = labelDisallowRe.ReplaceAllString(s, " ")
	return strings.ToUpper(collapse(s))
}

// NormalizeName is used for dataset lookups (exceptions, function keywords).
func NormalizeName(s string) string {
	return collapse(strings.ToLower(s))
}

// CollapseWhitespace trims and squeezes internal whitespace runs to one space.
func CollapseWhitespace(s string) string {
	return collapse(s)
}

// LabelKey is the stored key for a raw label: the label form of its ingredient form.
func LabelKey(label string) string {
	return NormalizeLabel(NormalizeIngredient(label))
}
