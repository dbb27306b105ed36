// Package stt controls speech recognition: a single recognition session at a
// time, with transcript clean-up.
package stt

import (
	"regexp"
	"strings"
)

// DefaultFillerWords are removed from recognized transcripts.
var DefaultFillerWords = []string{
	"um", "uh", "uhh", "umm", "erm", "er", "ah", "hmm",
	"you know", "basically",
}

var (
	spacePattern = regexp.MustCompile(`\s+`)
	punctPattern = regexp.MustCompile(`^[.,!?;:\s।]+$`)
)

// Filter strips filler words and stray punctuation from transcripts.
type Filter struct {
	pattern *regexp.Regexp
}

// NewFilter creates a filter for fillerWords. If fillerWords is nil,
// DefaultFillerWords is used.
func NewFilter(fillerWords []string) *Filter {
	if fillerWords == nil {
		fillerWords = DefaultFillerWords
	}
	f := &Filter{}
	if len(fillerWords) == 0 {
		return f
	}

	patterns := make([]string, 0, len(fillerWords))
	for _, word := range fillerWords {
		patterns = append(patterns, `\b`+regexp.QuoteMeta(strings.ToLower(word))+`\b`)
	}
	f.pattern = regexp.MustCompile(`(?i)(` + strings.Join(patterns, `|`) + `)[,.]?`)
	return f
}

// Clean removes filler words and normalizes whitespace. ok is false when
// nothing meaningful is left.
func (f *Filter) Clean(text string) (cleaned string, ok bool) {
	cleaned = text
	if f.pattern != nil {
		cleaned = f.pattern.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(spacePattern.ReplaceAllString(cleaned, " "))
	if punctPattern.MatchString(cleaned) {
		cleaned = ""
	}
	return cleaned, cleaned != ""
}
