package portal

import (
	"github.com/normanking/procurevoice/internal/dialogue"
	"github.com/normanking/procurevoice/internal/tts"
)

// Message types sent by the browser.
const (
	TypeHello       = "hello"
	TypeStart       = "start"
	TypeSubmit      = "submit"
	TypeMic         = "mic"
	TypeLanguage    = "language"
	TypeSound       = "sound"
	TypeReset       = "reset"
	TypeVoices      = "voices"
	TypeSpeechStart = "tts.start"
	TypeSpeechEnd   = "tts.end"
	TypeSpeechError = "tts.error"
	TypeHeard       = "stt.result"
	TypeHearError   = "stt.error"
	TypeHearEnd     = "stt.end"
)

// Message types sent to the browser. language, sound and reset are echoed
// back as confirmations.
const (
	TypeTurn         = "turn"
	TypeState        = "state"
	TypeNotice       = "notice"
	TypeError        = "error"
	TypeSpeak        = "tts.speak"
	TypeCancelSpeech = "tts.cancel"
	TypeListen       = "stt.start"
	TypeStopListen   = "stt.stop"
)

// Mic actions.
const (
	MicStart = "start"
	MicStop  = "stop"
)

// Message is one websocket frame in either direction.
type Message struct {
	Type string `json:"type"`

	ID     string `json:"id,omitempty"`
	Text   string `json:"text,omitempty"`
	Lang   string `json:"lang,omitempty"`
	Action string `json:"action,omitempty"`
	Kind   string `json:"kind,omitempty"`
	State  string `json:"state,omitempty"`
	Error  string `json:"error,omitempty"`

	// Sound is the speech output switch. Mic reports whether the browser can
	// recognize speech.
	Sound *bool `json:"sound,omitempty"`
	Mic   *bool `json:"mic,omitempty"`

	Voices    []tts.VoiceDescriptor `json:"voices,omitempty"`
	Utterance *tts.Utterance        `json:"utterance,omitempty"`
	Turn      *dialogue.Turn        `json:"turn,omitempty"`
}

func boolPtr(b bool) *bool { return &b }
