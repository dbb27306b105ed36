package tts

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SayEngine speaks through the macOS 'say' command. Cancel kills the running
// process.
type SayEngine struct {
	logger zerolog.Logger

	mu        sync.Mutex
	voices    []VoiceDescriptor
	loading   bool
	onChanged []func()
	cancel    context.CancelFunc
}

// NewSayEngine creates a 'say' engine. The voice catalog loads in the
// background on first use.
func NewSayEngine(logger zerolog.Logger) *SayEngine {
	return &SayEngine{
		logger: logger.With().Str("engine", "say").Logger(),
	}
}

// IsAvailable checks if this is macOS and the 'say' command exists.
func (e *SayEngine) IsAvailable() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := exec.LookPath("say")
	return err == nil
}

// Voices implements Engine. The first call starts loading the catalog and
// returns it empty.
func (e *SayEngine) Voices() []VoiceDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loading && e.voices == nil && e.IsAvailable() {
		e.loading = true
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.LoadVoices(ctx); err != nil {
				e.logger.Warn().Err(err).Msg("Failed to load voices")
			}
		}()
	}
	return append([]VoiceDescriptor(nil), e.voices...)
}

// LoadVoices reads the catalog from 'say -v ?' and notifies listeners.
func (e *SayEngine) LoadVoices(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "say", "-v", "?").Output()
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}
	voices := parseSayVoices(string(out))

	e.mu.Lock()
	e.voices = voices
	e.loading = false
	fns := append([]func(){}, e.onChanged...)
	e.mu.Unlock()

	e.logger.Debug().Int("voices", len(voices)).Msg("Voice catalog loaded")
	for _, fn := range fns {
		fn()
	}
	return nil
}

// OnVoicesChanged implements Engine.
func (e *SayEngine) OnVoicesChanged(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChanged = append(e.onChanged, fn)
}

// Speak implements Engine.
func (e *SayEngine) Speak(u Utterance, cb Callbacks) error {
	if !e.IsAvailable() {
		return ErrEngineUnavailable
	}

	args := []string{}
	if u.Voice != "" {
		args = append(args, "-v", u.Voice)
	}
	if u.Rate > 0 && u.Rate != 1.0 {
		// say takes words per minute; 175 is its natural rate
		args = append(args, "-r", fmt.Sprintf("%d", int(175*u.Rate)))
	}
	args = append(args, u.Text)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "say", args...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("say command failed: %w", err)
	}

	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	if cb.OnStart != nil {
		cb.OnStart()
	}
	go func() {
		defer cancel()
		err := cmd.Wait()
		switch {
		case ctx.Err() != nil:
			if cb.OnError != nil {
				cb.OnError(ErrInterrupted)
			}
		case err != nil:
			if cb.OnError != nil {
				cb.OnError(fmt.Errorf("say command failed: %w", err))
			}
		default:
			if cb.OnEnd != nil {
				cb.OnEnd()
			}
		}
	}()
	return nil
}

// Cancel implements Engine.
func (e *SayEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Lines look like:
//
//	Rishi               en_IN    # Hello! My name is Rishi.
//	Eddy (English (UK)) en_GB    # Hello! My name is Eddy.
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

func parseSayVoices(out string) []VoiceDescriptor {
	voices := []VoiceDescriptor{}
	for _, line := range strings.Split(out, "\n") {
		m := sayVoiceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		tag := strings.ReplaceAll(m[2], "_", "-")
		voices = append(voices, Describe(name, tag))
	}
	return voices
}
