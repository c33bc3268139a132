package lexical

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
// Repeated terms are kept.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
