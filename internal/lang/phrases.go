package lang

// Phrase identifies a fixed assistant or notice text.
type Phrase int

const (
	Greeting Phrase = iota
	SwitchConfirmation
	Apology
	Busy
	BlankInput
	MicUnsupported
	MicError
	NoSpeech
)

var phrasebook = map[Tag]map[Phrase]string{
	English: {
		Greeting:           "Hello! I'm your procurement assistant. Ask me about materials, prices, suppliers or deliveries.",
		SwitchConfirmation: "Switched to English. How can I help you?",
		Apology:            "Sorry, something went wrong while answering that. Please try again.",
		Busy:               "Please wait, I'm still answering your last question.",
		BlankInput:         "Please type or say a question first.",
		MicUnsupported:     "Voice input isn't available here. You can still type your question.",
		MicError:           "I couldn't access the microphone. Please check the permission and try again.",
		NoSpeech:           "I didn't catch that. Please try again.",
	},
	Hindi: {
		Greeting:           "नमस्ते! मैं आपका खरीद सहायक हूँ। सामग्री, कीमतें, सप्लायर या डिलीवरी के बारे में पूछिए।",
		SwitchConfirmation: "अब मैं हिन्दी में बात करूँगा। मैं आपकी क्या मदद कर सकता हूँ?",
		Apology:            "माफ़ कीजिए, जवाब देने में कुछ गड़बड़ हो गई। कृपया फिर से कोशिश करें।",
		Busy:               "कृपया रुकिए, मैं अभी पिछले सवाल का जवाब दे रहा हूँ।",
		BlankInput:         "कृपया पहले अपना सवाल लिखें या बोलें।",
		MicUnsupported:     "यहाँ वॉइस इनपुट उपलब्ध नहीं है। आप अपना सवाल लिख सकते हैं।",
		MicError:           "माइक्रोफ़ोन तक पहुँच नहीं मिली। कृपया अनुमति जाँचें और फिर कोशिश करें।",
		NoSpeech:           "मैं सुन नहीं पाया। कृपया फिर से बोलें।",
	},
}

// Text returns phrase p in language t, falling back to Default.
func Text(t Tag, p Phrase) string {
	if phrases, ok := phrasebook[t]; ok {
		if s, ok := phrases[p]; ok {
			return s
		}
	}
	return phrasebook[Default][p]
}
