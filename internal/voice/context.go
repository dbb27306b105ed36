// Package voice tracks cross-turn conversation signals: who the user appears
// to be, which materials they care about, what they asked recently and how
// the conversation feels.
package voice

import (
	"strings"

	"github.com/normanking/procurevoice/internal/fingerprint"
)

// Role is the inferred side of the marketplace the user is on.
type Role string

const (
	RoleUnknown  Role = "unknown"
	RoleBuyer    Role = "buyer"
	RoleSupplier Role = "supplier"
)

// Sentiment is a coarse mood label updated heuristically per turn.
type Sentiment string

const (
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

// RecentCapacity bounds Context.Recent.
const RecentCapacity = 5

// Context is the session-scoped conversation state. Values are replaced,
// never mutated in place; use Apply to derive the next one.
type Context struct {
	Role      Role              `json:"role"`
	Topics    []string          `json:"topics"`
	Recent    []fingerprint.Key `json:"recent"`
	Sentiment Sentiment         `json:"sentiment"`
}

// NewContext returns the context of a freshly started session.
func NewContext() Context {
	return Context{
		Role:      RoleUnknown,
		Sentiment: SentimentNeutral,
	}
}

// Patch is the set of signals detected in one turn. Zero fields carry no
// signal.
type Patch struct {
	Role        Role
	Topics      []string
	Fingerprint fingerprint.Key
	Sentiment   Sentiment
}

// IsEmpty reports whether applying p would change nothing.
func (p Patch) IsEmpty() bool {
	return (p.Role == "" || p.Role == RoleUnknown) &&
		len(p.Topics) == 0 &&
		p.Fingerprint.IsBlank() &&
		p.Sentiment == ""
}

// Apply merges p into c and returns the result. c is left untouched.
//
// Role is sticky: once buyer or supplier it is kept until the session is
// reset. Topics only grow. Recent keeps the last RecentCapacity fingerprints.
func Apply(c Context, p Patch) Context {
	next := Context{
		Role:      c.Role,
		Topics:    cloneStrings(c.Topics),
		Recent:    cloneKeys(c.Recent),
		Sentiment: c.Sentiment,
	}
	if next.Role == "" {
		next.Role = RoleUnknown
	}
	if next.Sentiment == "" {
		next.Sentiment = SentimentNeutral
	}

	if next.Role == RoleUnknown && (p.Role == RoleBuyer || p.Role == RoleSupplier) {
		next.Role = p.Role
	}

	for _, topic := range p.Topics {
		topic = strings.ToLower(strings.TrimSpace(topic))
		if topic == "" || next.HasTopic(topic) {
			continue
		}
		next.Topics = append(next.Topics, topic)
	}

	if !p.Fingerprint.IsBlank() {
		next.Recent = append(next.Recent, p.Fingerprint)
		if over := len(next.Recent) - RecentCapacity; over > 0 {
			next.Recent = append([]fingerprint.Key(nil), next.Recent[over:]...)
		}
	}

	switch p.Sentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		next.Sentiment = p.Sentiment
	}

	return next
}

// HasTopic reports whether topic was mentioned in this session.
func (c Context) HasTopic(topic string) bool {
	topic = strings.ToLower(topic)
	for _, t := range c.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// LastFingerprint returns the most recent fingerprint, or fingerprint.Blank.
func (c Context) LastFingerprint() fingerprint.Key {
	if len(c.Recent) == 0 {
		return fingerprint.Blank
	}
	return c.Recent[len(c.Recent)-1]
}

// Clone returns a deep copy of c.
func (c Context) Clone() Context {
	c.Topics = cloneStrings(c.Topics)
	c.Recent = cloneKeys(c.Recent)
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneKeys(in []fingerprint.Key) []fingerprint.Key {
	if in == nil {
		return nil
	}
	return append([]fingerprint.Key(nil), in...)
}
