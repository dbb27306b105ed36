// Package fingerprint canonicalizes user queries into order-insensitive keys.
//
// A Key is only ever compared for equality. Two queries with the same key are
// treated as the same question for repetition detection; the original text is
// still what gets matched against intent rules.
package fingerprint

import (
	"sort"
	"strings"
	"unicode"
)

// Key is the normalized form of a query.
type Key string

// Blank is the key of empty, whitespace-only or punctuation-only input.
const Blank Key = ""

// IsBlank reports whether k carries no tokens.
func (k Key) IsBlank() bool {
	return k == Blank
}

// String returns the key text.
func (k Key) String() string {
	return string(k)
}

// Of lower-cases text, drops punctuation and symbols, collapses whitespace and
// sorts the remaining tokens.
func Of(text string) Key {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return Blank
	}
	sort.Strings(tokens)
	return Key(strings.Join(tokens, " "))
}

// Tokens returns the lower-cased, punctuation-free words of text in their
// original order.
func Tokens(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r), unicode.IsMark(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			// punctuation and symbols are removed, not replaced
			return -1
		}
	}, text)
	return strings.Fields(cleaned)
}
