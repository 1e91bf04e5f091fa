// Package textnorm holds the text folding primitives shared by identity
// resolution, repost fingerprinting and catalog matching. Folding is
// deliberately conservative: casing, diacritics and whitespace runs never
// carry meaning, punctuation only does where a caller keeps it.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes, removes combining marks, recomposes. "Montaña"
// folds to "Montana" rather than dropping the rune.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s, strips diacritics and collapses consecutive
// whitespace into single spaces. Punctuation survives.
func Fold(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Transform only fails on malformed UTF-8; fall back to the raw
		// input so folding stays total.
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// StripPunctuation replaces every rune that is neither letter, digit nor
// space with a space, then collapses whitespace again.
func StripPunctuation(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Tokenize folds s and splits it into lowercase alphanumeric tokens.
func Tokenize(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TokenSet returns the distinct tokens of s.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}
