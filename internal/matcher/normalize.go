package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fillerWords carry no meaning for label matching.
var fillerWords = map[string]bool{
	"the": true, "of": true, "your": true, "please": true, "enter": true,
	"applicant": true, "applicants": true, "if": true, "any": true,
	"as": true, "in": true, "per": true, "a": true, "an": true,
}

// abbreviations expand common short forms before comparison.
var abbreviations = map[string]string{
	"no":   "number",
	"nr":   "number",
	"num":  "number",
	"tel":  "telephone",
	"ph":   "phone",
	"addr": "address",
	"dt":   "date",
	"exp":  "expiry",
	"mob":  "mobile",
}

// foldLabel removes diacritics, lowercases and strips punctuation.
func foldLabel(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, label)
	if err != nil {
		folded = label
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, "'s", "")
	folded = strings.ReplaceAll(folded, "’s", "")

	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// tokens returns the meaningful words of a label.
func tokens(label string) []string {
	var out []string
	for _, w := range strings.Fields(foldLabel(label)) {
		if fillerWords[w] {
			continue
		}
		if full, ok := abbreviations[w]; ok {
			w = full
		}
		out = append(out, w)
	}
	return out
}

// normalizeLabel is the comparison form of a label.
func normalizeLabel(label string) string {
	return strings.Join(tokens(label), " ")
}
