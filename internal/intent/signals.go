package intent

import (
	"strings"

	"github.com/normanking/procurevoice/internal/fingerprint"
	"github.com/normanking/procurevoice/internal/voice"
)

var (
	supplierSignals = []string{
		"i sell", "we sell", "we supply", "i supply", "list my products", "my products",
		"add product", "add my product", "i am a supplier", "we are suppliers", "manufacturer", "we manufacture",
		"मैं बेचता", "हम बेचते",
	}
	buyerSignals = []string{
		"buy", "purchase", "procure", "need to order", "i need", "we need", "looking for", "quote", "quotation",
		"खरीदना", "ख़रीदना", "चाहिए",
	}

	positiveWords = []string{
		"thanks", "thank", "great", "good", "excellent", "awesome", "perfect", "helpful", "nice", "happy",
		"धन्यवाद", "शुक्रिया", "बढ़िया", "अच्छा",
	}
	negativeWords = []string{
		"bad", "terrible", "poor", "late", "delay", "delayed", "problem", "issue", "angry", "disappointed",
		"worst", "expensive", "complaint", "wrong", "खराब", "देरी", "समस्या", "महंगा",
	}
)

// tokenLine renders text as " tok1 tok2 ... " so keywords can be matched as
// whole token sequences with a plain substring search.
func tokenLine(text string) string {
	tokens := fingerprint.Tokens(text)
	if len(tokens) == 0 {
		return ""
	}
	return " " + strings.Join(tokens, " ") + " "
}

func containsKeyword(line, keyword string) bool {
	if line == "" || keyword == "" {
		return false
	}
	return strings.Contains(line, " "+strings.ToLower(keyword)+" ")
}

func containsAny(line string, keywords []string) bool {
	for _, kw := range keywords {
		if containsKeyword(line, kw) {
			return true
		}
	}
	return false
}

func countAny(line string, words []string) int {
	n := 0
	for _, w := range words {
		if containsKeyword(line, w) {
			n++
		}
	}
	return n
}

// detectTopics returns every material mentioned, in material priority order.
func detectTopics(line string) []string {
	var topics []string
	for _, m := range materials {
		if containsAny(line, m.keywords) {
			topics = append(topics, m.topic)
		}
	}
	return topics
}

// detectRole returns a role only when the signals are unambiguous.
func detectRole(line string) voice.Role {
	supplier := containsAny(line, supplierSignals)
	buyer := containsAny(line, buyerSignals)
	switch {
	case supplier && !buyer:
		return voice.RoleSupplier
	case buyer && !supplier:
		return voice.RoleBuyer
	}
	return voice.RoleUnknown
}

// detectSentiment returns "" when the query carries no mood words at all.
func detectSentiment(line string) voice.Sentiment {
	pos := countAny(line, positiveWords)
	neg := countAny(line, negativeWords)
	switch {
	case pos == 0 && neg == 0:
		return ""
	case pos > neg:
		return voice.SentimentPositive
	case neg > pos:
		return voice.SentimentNegative
	}
	return voice.SentimentNeutral
}
