package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName flattens a Turkish place name for comparison: Turkish-aware
// lower casing, dotless ı folded to i, diacritics stripped, spaces trimmed.
func NormalizeName(s string) string {
	// Casers and transformers are stateful; build them per call.
	lower := cases.Lower(language.Turkish).String(s)
	lower = strings.ReplaceAll(lower, "ı", "i")

	strip := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(strip, lower)
	if err != nil {
		out = lower
	}
	return strings.TrimSpace(out)
}

// Slug returns the hyphenated normalized form used by mirror endpoints,
// e.g. "Şanlıurfa" -> "sanliurfa", "Afyon Karahisar" -> "afyon-karahisar".
func Slug(s string) string {
	return strings.Join(strings.Fields(NormalizeName(s)), "-")
}
