// Package tts controls speech output: picking a voice for a language and
// owning the single active utterance.
package tts

import (
	"sort"
	"strings"
	"unicode"

	"github.com/normanking/procurevoice/internal/lang"
)

// Gender is a hint inferred from a voice name.
type Gender string

const (
	GenderUnknown Gender = "unknown"
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
)

// VoiceDescriptor describes one voice offered by a speech engine.
type VoiceDescriptor struct {
	Name   string `json:"name"`
	Lang   string `json:"lang"`
	Gender Gender `json:"gender,omitempty"`
}

// Tokens matched against the words of a voice name. Engines do not report
// gender, so the name is all there is to go on.
var (
	MaleTokens = []string{
		"male", "man", "david", "mark", "daniel", "alex", "oliver", "rishi", "ravi",
		"hemant", "prabhat", "madhur", "george", "james", "tom", "fred", "guy", "aaron",
	}
	FemaleTokens = []string{
		"female", "woman", "zira", "samantha", "karen", "victoria", "serena", "veena",
		"heera", "kalpana", "swara", "neerja", "lekha", "susan", "hazel", "fiona",
		"zoe", "tessa", "moira", "aria", "jenny",
	}
)

// Describe builds a descriptor with a gender hint inferred from name.
func Describe(name, tag string) VoiceDescriptor {
	return VoiceDescriptor{Name: name, Lang: tag, Gender: GenderOf(name)}
}

// GenderOf infers a gender hint from the words of a voice name. Female
// tokens are checked first so "Female" never reads as "male".
func GenderOf(name string) Gender {
	words := nameWords(name)
	switch {
	case hasAny(words, FemaleTokens):
		return GenderFemale
	case hasAny(words, MaleTokens):
		return GenderMale
	}
	return GenderUnknown
}

func nameWords(name string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	words := make(map[string]bool, len(fields))
	for _, f := range fields {
		words[f] = true
	}
	return words
}

func hasAny(words map[string]bool, tokens []string) bool {
	for _, t := range tokens {
		if words[t] {
			return true
		}
	}
	return false
}

// Policy picks a voice for a language from a catalog. ok is false when
// nothing fits and the engine default should be used.
type Policy func(tag string, catalog []VoiceDescriptor) (v VoiceDescriptor, ok bool)

// SelectVoice is the default Policy. In order:
//  1. a language match with a male-indicative name
//  2. a language match whose name is not female-indicative
//  3. any language match
//
// Ties within a tier go to the lowest name so the choice does not depend on
// catalog order.
func SelectVoice(tag string, catalog []VoiceDescriptor) (VoiceDescriptor, bool) {
	var matches []VoiceDescriptor
	for _, v := range catalog {
		if !lang.Equal(v.Lang, tag) {
			continue
		}
		if v.Gender == "" {
			v.Gender = GenderOf(v.Name)
		}
		matches = append(matches, v)
	}
	if len(matches) == 0 {
		return VoiceDescriptor{}, false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })

	for _, v := range matches {
		if v.Gender == GenderMale {
			return v, true
		}
	}
	for _, v := range matches {
		if v.Gender != GenderFemale {
			return v, true
		}
	}
	return matches[0], true
}
