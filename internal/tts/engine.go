package tts

import "errors"

var (
	// ErrEngineUnavailable is returned by engines that cannot speak here.
	ErrEngineUnavailable = errors.New("speech output engine unavailable")
	// ErrSuperseded is returned by Speak when a later Speak or Cancel won
	// before the utterance could start.
	ErrSuperseded = errors.New("utterance superseded")
	// ErrInterrupted is reported by engines for utterances stopped by Cancel.
	ErrInterrupted = errors.New("utterance interrupted")
)

// Utterance is one piece of text handed to an engine.
type Utterance struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Voice  string  `json:"voice,omitempty"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Callbacks receive an utterance's lifecycle from the engine. Engines may
// call them from any goroutine, and may still call them after Cancel.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
}

// Engine is a speech synthesizer.
type Engine interface {
	// Voices returns the current catalog. It may be empty until the engine
	// has finished loading.
	Voices() []VoiceDescriptor
	// OnVoicesChanged registers fn to be called when the catalog changes.
	OnVoicesChanged(fn func())
	// Speak starts speaking u. An error means the utterance never started.
	Speak(u Utterance, cb Callbacks) error
	// Cancel stops whatever is being spoken.
	Cancel()
}
