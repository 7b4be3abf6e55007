package search

import (
	"strings"
	"unicode"
)

// Tokenize lower-cases text and splits it on every run of non-word
// characters. Word characters are letters, digits and underscore.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_'
	})
}
