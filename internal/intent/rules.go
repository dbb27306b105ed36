package intent

import (
	"fmt"
	"strings"

	"github.com/normanking/procurevoice/internal/lang"
	"github.com/normanking/procurevoice/internal/training"
)

// Category classifies a message for the optional remote generator.
type Category string

const (
	CategoryGeneral   Category = "general"
	CategoryAutoReply Category = "auto_reply"
)

// Rule is one keyword rule. Keywords are matched as whole tokens or token
// sequences against the lower-cased query.
type Rule struct {
	Name     string
	Keywords []string
	Category Category
	Variants map[lang.Tag][]string

	// enrich appends seeded market data to a chosen variant.
	enrich func(p *training.Payload, req Request, tag lang.Tag) string
}

type material struct {
	topic    string
	keywords []string
	name     string
	nameHi   string
	price    string
	priceHi  string
}

var materials = []material{
	{"cement", []string{"cement", "opc", "सीमेंट"}, "Cement", "सीमेंट", "₹350-450 per 50 kg bag", "₹350-450 प्रति 50 किलो बोरी"},
	{"steel", []string{"steel", "tmt", "rebar", "rebars", "स्टील", "सरिया"}, "Steel", "स्टील", "₹55-68 per kg", "₹55-68 प्रति किलो"},
	{"copper", []string{"copper", "तांबा"}, "Copper", "तांबा", "₹750-850 per kg", "₹750-850 प्रति किलो"},
	{"aluminium", []string{"aluminium", "aluminum", "एल्युमिनियम"}, "Aluminium", "एल्युमिनियम", "₹220-260 per kg", "₹220-260 प्रति किलो"},
	{"timber", []string{"timber", "wood", "plywood", "लकड़ी"}, "Timber", "लकड़ी", "₹1,500-3,000 per cubic foot", "₹1,500-3,000 प्रति घन फुट"},
	{"bricks", []string{"brick", "bricks", "ईंट"}, "Bricks", "ईंट", "₹6-10 per piece", "₹6-10 प्रति नग"},
	{"sand", []string{"sand", "रेत", "बालू"}, "Sand", "रेत", "₹45-70 per cubic foot", "₹45-70 प्रति घन फुट"},
	{"plastic", []string{"plastic", "pvc", "hdpe", "प्लास्टिक"}, "PVC resin", "प्लास्टिक", "₹90-120 per kg", "₹90-120 प्रति किलो"},
	{"glass", []string{"glass", "कांच"}, "Glass", "कांच", "₹40-90 per sq ft", "₹40-90 प्रति वर्ग फुट"},
}

func materialRule(m material) Rule {
	lower := strings.ToLower(m.name)
	return Rule{
		Name:     "material:" + m.topic,
		Keywords: m.keywords,
		Category: CategoryGeneral,
		Variants: map[lang.Tag][]string{
			lang.English: {
				fmt.Sprintf("%s is currently trading around %s. Rates vary by grade and delivery location, so share the quantity and city for a firmer quote.", m.name, m.price),
				fmt.Sprintf("Current %s rates are roughly %s. Would you like me to connect you with verified %s suppliers?", lower, m.price, lower),
				fmt.Sprintf("For %s, expect about %s right now. Bulk orders usually get a better rate.", lower, m.price),
			},
			lang.Hindi: {
				fmt.Sprintf("%s की मौजूदा कीमत लगभग %s है। पक्की कीमत के लिए मात्रा और शहर बताइए।", m.nameHi, m.priceHi),
				fmt.Sprintf("अभी %s का भाव करीब %s चल रहा है। क्या मैं आपको भरोसेमंद सप्लायर से जोड़ूँ?", m.nameHi, m.priceHi),
			},
		},
		enrich: func(p *training.Payload, _ Request, tag lang.Tag) string {
			in, ok := p.InsightFor(m.topic)
			if !ok {
				return ""
			}
			return seeded[tag].insight + in.Summary
		},
	}
}

type seededPhrases struct {
	insight   string
	suppliers string
	trending  string
}

var seeded = map[lang.Tag]seededPhrases{
	lang.English: {insight: " Market note: ", suppliers: " Suppliers on the portal: ", trending: " Trending now: "},
	lang.Hindi:   {insight: " बाज़ार की जानकारी: ", suppliers: " पोर्टल पर सप्लायर: ", trending: " अभी ट्रेंड में: "},
}

// DefaultRules returns the rule list in priority order. The first matching
// rule wins.
func DefaultRules() []Rule {
	rules := []Rule{
		{
			Name:     "auto_reply",
			Keywords: []string{"draft", "auto reply", "autoreply", "reply to", "respond to", "write a reply", "ड्राफ्ट", "जवाब लिखो"},
			Category: CategoryAutoReply,
			Variants: map[lang.Tag][]string{
				lang.English: {
					"Here's a draft you can send: \"Thank you for your enquiry. We have the material in stock and can share a detailed quotation within 24 hours. Please confirm the quantity and delivery location.\"",
					"Suggested reply: \"Thanks for reaching out. Could you share the required quantity, grade and delivery date so we can quote accurately?\"",
				},
				lang.Hindi: {
					"आप यह जवाब भेज सकते हैं: \"पूछताछ के लिए धन्यवाद। माल स्टॉक में है, हम 24 घंटे में विस्तृत कोटेशन भेज देंगे। कृपया मात्रा और डिलीवरी की जगह बताइए।\"",
				},
			},
		},
		{
			Name:     "suppliers",
			Keywords: []string{"supplier", "suppliers", "vendor", "vendors", "सप्लायर", "विक्रेता"},
			Category: CategoryGeneral,
			Variants: map[lang.Tag][]string{
				lang.English: {
					"I can help you find verified suppliers. Tell me the material and your city and I'll shortlist the best matches.",
					"Our portal lists verified suppliers with ratings and delivery coverage. Which material are you sourcing?",
				},
				lang.Hindi: {
					"मैं आपको भरोसेमंद सप्लायर ढूँढने में मदद कर सकता हूँ। सामग्री और शहर बताइए।",
				},
			},
			enrich: enrichSuppliers,
		},
		{
			Name:     "trending",
			Keywords: []string{"trending", "hot products", "popular", "in demand", "best selling", "ट्रेंडिंग", "लोकप्रिय"},
			Category: CategoryGeneral,
			Variants: map[lang.Tag][]string{
				lang.English: {
					"Construction steel, cement and copper wiring are seeing strong demand this month.",
					"Buyers are most active on TMT bars, OPC cement and PVC pipes right now.",
				},
				lang.Hindi: {
					"इस महीने सरिया, सीमेंट और तांबे के तार की माँग सबसे ज़्यादा है।",
				},
			},
			enrich: enrichTrending,
		},
	}

	for _, m := range materials {
		rules = append(rules, materialRule(m))
	}

	rules = append(rules,
		Rule{
			Name:     "order_status",
			Keywords: []string{"status", "track", "tracking", "my order", "where is my order", "ऑर्डर", "स्थिति"},
			Category: CategoryGeneral,
			Variants: map[lang.Tag][]string{
				lang.English: {
					"You can track every order from the Orders page. Share the order number and I'll tell you where it stands.",
					"Order updates appear on your dashboard as soon as the supplier confirms dispatch. Do you have the order ID handy?",
				},
				lang.Hindi: {
					"आप ऑर्डर पेज से हर ऑर्डर ट्रैक कर सकते हैं। ऑर्डर नंबर बताइए, मैं स्थिति बताता हूँ।",
				},
			},
		},
		Rule{
			Name:     "logistics",
			Keywords: []string{"delivery", "deliver", "shipping", "ship", "transport", "logistics", "freight", "dispatch", "डिलीवरी", "शिपिंग"},
			Category: CategoryGeneral,
			Variants: map[lang.Tag][]string{
				lang.English: {
					"Most suppliers deliver within 3-7 working days. Freight depends on distance and load, and I can compare transport options for you.",
					"We partner with regional transporters for full and part truck loads. Tell me the pickup and drop cities for an estimate.",
				},
				lang.Hindi: {
					"ज़्यादातर सप्लायर 3-7 कार्यदिवस में डिलीवरी करते हैं। भाड़ा दूरी और माल पर निर्भर है।",
				},
			},
		},
		Rule{
			Name:     "pricing",
			Keywords: []string{"price", "prices", "rate", "rates", "cost", "quote", "quotation", "कीमत", "भाव", "दाम"},
			Category: CategoryGeneral,
			Variants: map[lang.Tag][]string{
				lang.English: {
					"Prices depend on the material, grade and quantity. Which material would you like a rate for?",
					"I can share current market rates for cement, steel, copper, timber and more. Which one do you need?",
				},
				lang.Hindi: {
					"कीमत सामग्री, ग्रेड और मात्रा पर निर्भर करती है। किस सामग्री का भाव चाहिए?",
				},
			},
		},
		Rule{
			Name:     "greeting",
			Keywords: []string{"hi", "hello", "hey", "namaste", "good morning", "good afternoon", "good evening", "नमस्ते", "नमस्कार"},
			Category: CategoryGeneral,
			Variants: map[lang.Tag][]string{
				lang.English: {
					"Hello! How can I help with your procurement today?",
					"Hi there! Looking for materials, prices or suppliers?",
					"Namaste! What are you sourcing today?",
				},
				lang.Hindi: {
					"नमस्ते! आज मैं आपकी खरीद में कैसे मदद करूँ?",
					"नमस्कार! आप कौन सी सामग्री ढूँढ रहे हैं?",
				},
			},
		},
		Rule{
			Name:     "thanks",
			Keywords: []string{"thanks", "thank", "thx", "धन्यवाद", "शुक्रिया"},
			Category: CategoryGeneral,
			Variants: map[lang.Tag][]string{
				lang.English: {
					"You're welcome! Anything else I can help you source?",
					"Happy to help. Let me know if you need more quotes.",
				},
				lang.Hindi: {
					"आपका स्वागत है! और कुछ चाहिए तो बताइए।",
				},
			},
		},
	)
	return rules
}

var fallbackVariants = map[lang.Tag][]string{
	lang.English: {
		"I can help with material prices, finding suppliers, order status, delivery and drafting replies to buyers. What would you like to know?",
		"I'm not sure I understood. Try asking about a material like cement or steel, a supplier, or your order status.",
	},
	lang.Hindi: {
		"मैं सामग्री की कीमत, सप्लायर, ऑर्डर की स्थिति, डिलीवरी और खरीदारों को जवाब लिखने में मदद कर सकता हूँ। आप क्या जानना चाहेंगे?",
		"मैं ठीक से समझ नहीं पाया। सीमेंट या स्टील जैसी सामग्री, सप्लायर या अपने ऑर्डर के बारे में पूछिए।",
	},
}

func enrichSuppliers(p *training.Payload, req Request, tag lang.Tag) string {
	var topics []string
	topics = append(topics, detectTopics(tokenLine(req.Text))...)
	topics = append(topics, req.Context.Topics...)

	var names []string
	seen := map[string]bool{}
	for _, topic := range topics {
		for _, s := range p.SuppliersOf(topic) {
			if !seen[s.Name] {
				seen[s.Name] = true
				names = append(names, supplierLabel(s))
			}
		}
	}
	if len(names) == 0 {
		for _, s := range p.Suppliers {
			names = append(names, supplierLabel(s))
		}
	}
	if len(names) == 0 {
		return ""
	}
	if len(names) > 3 {
		names = names[:3]
	}
	return seeded[tag].suppliers + strings.Join(names, ", ") + "."
}

func supplierLabel(s training.Supplier) string {
	if s.Location == "" {
		return s.Name
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.Location)
}

func enrichTrending(p *training.Payload, _ Request, tag lang.Tag) string {
	var items []string
	for _, hp := range p.HotProducts {
		if hp.PriceRange != "" {
			items = append(items, fmt.Sprintf("%s at %s", hp.Name, hp.PriceRange))
		} else {
			items = append(items, hp.Name)
		}
		if len(items) == 3 {
			break
		}
	}
	if len(items) == 0 {
		return ""
	}
	return seeded[tag].trending + strings.Join(items, "; ") + "."
}
