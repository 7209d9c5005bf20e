package transformations

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldAccents removes combining marks so that "CÓRDOBA" and "Cordoba" compare equal
// after lower-casing.
func foldAccents(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return folded
}

func sameName(a, b string) bool {
	return strings.ToLower(foldAccents(strings.TrimSpace(a))) == strings.ToLower(foldAccents(strings.TrimSpace(b)))
}
