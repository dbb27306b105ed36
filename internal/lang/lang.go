// Package lang defines the languages the assistant speaks and the fixed
// phrases it uses in each.
package lang

import (
	"errors"
	"fmt"
	"strings"
)

// Tag is a BCP-47 language tag such as "en-IN".
type Tag string

const (
	English Tag = "en-IN"
	Hindi   Tag = "hi-IN"

	Default = English
)

// ErrUnsupported is returned for tags outside Supported.
var ErrUnsupported = errors.New("unsupported language")

// Supported lists the selectable languages in display order.
var Supported = []Tag{English, Hindi}

// Normalize lower-cases t and uses '-' as the subtag separator so tags from
// different speech engines compare equal.
func Normalize(t string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(t), "_", "-"))
}

// Parse maps a user or engine supplied tag onto a supported Tag. A bare
// primary subtag ("hi") is accepted.
func Parse(s string) (Tag, error) {
	n := Normalize(s)
	for _, tag := range Supported {
		full := Normalize(string(tag))
		if n == full || n == strings.SplitN(full, "-", 2)[0] {
			return tag, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
}

// Equal reports whether a and b name the same language after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Name returns the display name of t.
func (t Tag) Name() string {
	switch t {
	case English:
		return "English"
	case Hindi:
		return "हिन्दी"
	}
	return string(t)
}
