package tts

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogEngine is a text-only engine: it logs each utterance and reports it as
// spoken after a reading-pace delay. It stands in where no audio device is
// available.
type LogEngine struct {
	logger zerolog.Logger
	pace   time.Duration

	mu        sync.Mutex
	voices    []VoiceDescriptor
	onChanged []func()
	stop      chan struct{}
}

// NewLogEngine creates a log engine. pace is the simulated time per word;
// zero ends utterances immediately.
func NewLogEngine(voices []VoiceDescriptor, pace time.Duration, logger zerolog.Logger) *LogEngine {
	return &LogEngine{
		logger: logger.With().Str("engine", "log").Logger(),
		pace:   pace,
		voices: append([]VoiceDescriptor(nil), voices...),
	}
}

// Voices implements Engine.
func (e *LogEngine) Voices() []VoiceDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]VoiceDescriptor(nil), e.voices...)
}

// SetVoices replaces the catalog and notifies listeners.
func (e *LogEngine) SetVoices(voices []VoiceDescriptor) {
	e.mu.Lock()
	e.voices = append([]VoiceDescriptor(nil), voices...)
	fns := append([]func(){}, e.onChanged...)
	e.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OnVoicesChanged implements Engine.
func (e *LogEngine) OnVoicesChanged(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChanged = append(e.onChanged, fn)
}

// Speak implements Engine.
func (e *LogEngine) Speak(u Utterance, cb Callbacks) error {
	stop := make(chan struct{})
	e.mu.Lock()
	e.stop = stop
	e.mu.Unlock()

	e.logger.Info().
		Str("id", u.ID).
		Str("lang", u.Lang).
		Str("voice", u.Voice).
		Str("text", u.Text).
		Msg("Utterance")

	delay := time.Duration(len(strings.Fields(u.Text))) * e.pace
	go func() {
		if cb.OnStart != nil {
			cb.OnStart()
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-stop:
				if cb.OnError != nil {
					cb.OnError(ErrInterrupted)
				}
				return
			case <-timer.C:
			}
		}
		if cb.OnEnd != nil {
			cb.OnEnd()
		}
	}()
	return nil
}

// Cancel implements Engine.
func (e *LogEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}
