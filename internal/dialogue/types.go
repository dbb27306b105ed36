// Package dialogue runs one assistant conversation: it accepts typed or
// spoken turns, resolves them, keeps the transcript and context, and drives
// speech output through the language-switch, greeting and reset lifecycle.
package dialogue

import (
	"context"
	"errors"
	"time"

	"github.com/normanking/procurevoice/internal/intent"
	"github.com/normanking/procurevoice/internal/stt"
	"github.com/normanking/procurevoice/internal/training"
	"github.com/normanking/procurevoice/internal/tts"
)

// State is the orchestrator's state.
type State string

const (
	StateIdle          State = "idle"
	StateGreeting      State = "greeting"
	StateAwaitingInput State = "awaitingInput"
	StateListening     State = "listening"
	StateResolving     State = "resolving"
	StateSpeaking      State = "speaking"
)

// Role says who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one transcript entry. Turns are never modified once appended.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Lang      string    `json:"lang"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sources of assistant turns that do not come from the resolver.
const (
	SourceGreeting     = "greeting"
	SourceConfirmation = "confirmation"
	SourceApology      = "apology"
)

// Notice kinds. Notices are shown to the user but never enter the
// transcript.
const (
	NoticeBlankInput     = "blank_input"
	NoticeBusy           = "busy"
	NoticeMicUnsupported = "mic_unsupported"
	NoticeMicError       = "mic_error"
	NoticeNoSpeech       = "no_speech"
)

var (
	// ErrBlankInput is returned for empty or whitespace-only submissions.
	ErrBlankInput = errors.New("blank input")
	// ErrBusy is returned when a turn arrives while another is in progress.
	ErrBusy = errors.New("assistant is busy")
	// ErrNotStarted is returned before Start or after Reset.
	ErrNotStarted = errors.New("session not started")
	// ErrSessionReset is returned by a Submit whose session was reset while
	// it was resolving.
	ErrSessionReset = errors.New("session reset")
	// ErrResolverPanic wraps a recovered resolver panic.
	ErrResolverPanic = errors.New("resolver panicked")
)

// Resolver produces replies.
type Resolver interface {
	Resolve(ctx context.Context, req intent.Request) (intent.Result, error)
}

// Seeder accepts training data. Resolvers that implement it are seeded once
// when the session starts.
type Seeder interface {
	Seed(p *training.Payload)
}

// Speaker is the speech output controller.
type Speaker interface {
	Speak(ctx context.Context, s tts.Speech) (string, error)
	Cancel()
	Voice(tag string) (tts.VoiceDescriptor, bool)
	OnEvent(fn tts.Listener)
}

// Recognizer is the speech input controller.
type Recognizer interface {
	Available() bool
	Start(lang string) (string, error)
	Stop()
	OnEvent(fn stt.Listener)
}

var (
	_ Speaker    = (*tts.Controller)(nil)
	_ Recognizer = (*stt.Controller)(nil)
	_ Resolver   = (*intent.Resolver)(nil)
	_ Seeder     = (*intent.Resolver)(nil)
)
