package portal

import (
	"errors"
	"sync"

	"github.com/normanking/procurevoice/internal/stt"
	"github.com/normanking/procurevoice/internal/tts"
)

// browserSpeech is a tts.Engine backed by the browser's speech synthesis.
// Utterances are sent down the socket and their lifecycle comes back as
// tts.start, tts.end and tts.error messages.
type browserSpeech struct {
	send func(Message)

	mu        sync.Mutex
	voices    []tts.VoiceDescriptor
	listeners []func()
	pending   map[string]tts.Callbacks
}

func newBrowserSpeech(send func(Message)) *browserSpeech {
	return &browserSpeech{send: send, pending: make(map[string]tts.Callbacks)}
}

func (b *browserSpeech) Voices() []tts.VoiceDescriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tts.VoiceDescriptor(nil), b.voices...)
}

func (b *browserSpeech) OnVoicesChanged(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// setVoices replaces the catalog. Voices without a gender get one inferred
// from their name.
func (b *browserSpeech) setVoices(voices []tts.VoiceDescriptor) {
	catalog := make([]tts.VoiceDescriptor, 0, len(voices))
	for _, v := range voices {
		if v.Name == "" {
			continue
		}
		if v.Gender == "" {
			v.Gender = tts.GenderOf(v.Name)
		}
		catalog = append(catalog, v)
	}

	b.mu.Lock()
	b.voices = catalog
	listeners := append([]func(){}, b.listeners...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (b *browserSpeech) Speak(u tts.Utterance, cb tts.Callbacks) error {
	b.mu.Lock()
	b.pending[u.ID] = cb
	b.mu.Unlock()

	b.send(Message{Type: TypeSpeak, Utterance: &u})
	return nil
}

func (b *browserSpeech) Cancel() {
	b.mu.Lock()
	b.pending = make(map[string]tts.Callbacks)
	b.mu.Unlock()

	b.send(Message{Type: TypeCancelSpeech})
}

func (b *browserSpeech) started(id string) {
	b.mu.Lock()
	cb, ok := b.pending[id]
	b.mu.Unlock()
	if ok && cb.OnStart != nil {
		cb.OnStart()
	}
}

func (b *browserSpeech) finished(id string, err error) {
	b.mu.Lock()
	cb, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	if err != nil {
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return
	}
	if cb.OnEnd != nil {
		cb.OnEnd()
	}
}

// browserMic is a stt.Engine backed by the browser's speech recognition.
type browserMic struct {
	send func(Message)

	mu        sync.Mutex
	available bool
	cb        *stt.Callbacks
}

func newBrowserMic(send func(Message)) *browserMic {
	return &browserMic{send: send}
}

func (m *browserMic) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *browserMic) setAvailable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = ok
}

func (m *browserMic) Start(lang string, cb stt.Callbacks) error {
	m.mu.Lock()
	if !m.available {
		m.mu.Unlock()
		return stt.ErrUnsupported
	}
	m.cb = &cb
	m.mu.Unlock()

	m.send(Message{Type: TypeListen, Lang: lang})
	return nil
}

func (m *browserMic) Stop() {
	m.mu.Lock()
	m.cb = nil
	m.mu.Unlock()

	m.send(Message{Type: TypeStopListen})
}

func (m *browserMic) callbacks(clear bool) *stt.Callbacks {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb := m.cb
	if clear {
		m.cb = nil
	}
	return cb
}

func (m *browserMic) heard(text string) {
	if cb := m.callbacks(false); cb != nil && cb.OnResult != nil {
		cb.OnResult(text)
	}
}

func (m *browserMic) failed(err error) {
	if cb := m.callbacks(false); cb != nil && cb.OnError != nil {
		cb.OnError(err)
	}
}

func (m *browserMic) ended() {
	if cb := m.callbacks(true); cb != nil && cb.OnEnd != nil {
		cb.OnEnd()
	}
}

// recognitionError maps browser recognition error codes to stt errors.
func recognitionError(code string) error {
	switch code {
	case "no-speech", "aborted":
		return stt.ErrNoSpeech
	case "not-allowed", "service-not-allowed":
		return stt.ErrPermissionDenied
	case "":
		return errors.New("recognition failed")
	default:
		return errors.New(code)
	}
}
