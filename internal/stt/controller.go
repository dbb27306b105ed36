package stt

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrUnsupported means no recognition engine is available.
	ErrUnsupported = errors.New("speech recognition unsupported")
	// ErrAlreadyActive is returned by Start while a session is running.
	ErrAlreadyActive = errors.New("speech recognition already active")
	// ErrNoSpeech is reported when a session ends without usable text.
	ErrNoSpeech = errors.New("no speech recognized")
	// ErrPermissionDenied is reported by engines denied microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
)

// Callbacks receive a recognition session's outcome from the engine.
type Callbacks struct {
	OnResult func(text string)
	OnError  func(err error)
	OnEnd    func()
}

// Engine is a speech recognizer.
type Engine interface {
	Available() bool
	// Start begins recognition. An error means no session was started.
	// Callbacks must not fire before Start returns.
	Start(lang string, cb Callbacks) error
	Stop()
}

// Unavailable is an Engine for environments without speech recognition.
type Unavailable struct{}

func (Unavailable) Available() bool              { return false }
func (Unavailable) Start(string, Callbacks) error { return ErrUnsupported }
func (Unavailable) Stop()                         {}

// EventKind is a recognition lifecycle signal.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventResult  EventKind = "result"
	EventError   EventKind = "error"
	EventEnded   EventKind = "ended"
)

// Event reports a lifecycle change of one session.
type Event struct {
	Kind      EventKind
	SessionID string
	Lang      string
	Text      string
	Err       error
	// Stopped is set on the ended event of a session ended by Stop.
	Stopped bool
}

// Listener receives controller events. Listeners run synchronously and must
// not call back into the Controller.
type Listener func(Event)

type session struct {
	id       string
	gen      uint64
	lang     string
	resolved bool
}

// Controller owns the single recognition session. Each started session
// reports exactly one result or error, then ended.
type Controller struct {
	engine Engine
	filter *Filter
	logger zerolog.Logger

	engineMu sync.Mutex

	mu        sync.Mutex
	gen       uint64
	active    *session
	listeners []Listener
}

// NewController creates a controller around engine. A nil filter disables
// transcript clean-up.
func NewController(engine Engine, filter *Filter, logger zerolog.Logger) *Controller {
	if engine == nil {
		engine = Unavailable{}
	}
	return &Controller{
		engine: engine,
		filter: filter,
		logger: logger.With().Str("component", "stt").Logger(),
	}
}

// OnEvent registers a listener for lifecycle events.
func (c *Controller) OnEvent(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// Available reports whether recognition can be used at all.
func (c *Controller) Available() bool {
	return c.engine.Available()
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Start begins a recognition session in lang. Starting while a session is
// active does nothing and returns ErrAlreadyActive.
func (c *Controller) Start(lang string) (string, error) {
	if !c.engine.Available() {
		return "", ErrUnsupported
	}

	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	c.mu.Lock()
	if c.active != nil {
		id := c.active.id
		c.mu.Unlock()
		c.logger.Warn().Str("session", id).Msg("Recognition already active, ignoring start")
		return "", ErrAlreadyActive
	}
	c.gen++
	s := &session{id: uuid.NewString(), gen: c.gen, lang: lang}
	c.active = s
	c.mu.Unlock()

	gen := s.gen
	err := c.engine.Start(lang, Callbacks{
		OnResult: func(text string) { c.handleResult(gen, text) },
		OnError:  func(err error) { c.handleError(gen, err) },
		OnEnd:    func() { c.handleEnd(gen) },
	})
	if err != nil {
		c.mu.Lock()
		if c.active != nil && c.active.gen == gen {
			c.active = nil
		}
		c.mu.Unlock()
		return "", fmt.Errorf("start recognition: %w", err)
	}

	c.logger.Debug().Str("session", s.id).Str("lang", lang).Msg("Recognition started")
	c.emit(Event{Kind: EventStarted, SessionID: s.id, Lang: lang})
	return s.id, nil
}

// Stop ends the active session immediately. Late engine callbacks for it are
// dropped.
func (c *Controller) Stop() {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	c.mu.Lock()
	prev := c.active
	c.active = nil
	c.gen++
	c.mu.Unlock()

	if prev == nil {
		return
	}
	c.engine.Stop()
	c.logger.Debug().Str("session", prev.id).Msg("Recognition stopped")
	c.emit(Event{Kind: EventEnded, SessionID: prev.id, Lang: prev.lang, Stopped: true})
}

// resolve marks the session of generation gen as having produced its one
// outcome. It returns nil when the callback is stale or a duplicate.
func (c *Controller) resolve(gen uint64) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.active
	if s == nil || s.gen != gen || s.resolved {
		return nil
	}
	s.resolved = true
	return s
}

func (c *Controller) handleResult(gen uint64, text string) {
	s := c.resolve(gen)
	if s == nil {
		return
	}
	cleaned, ok := text, text != ""
	if c.filter != nil {
		cleaned, ok = c.filter.Clean(text)
	}
	if !ok {
		c.emit(Event{Kind: EventError, SessionID: s.id, Lang: s.lang, Err: ErrNoSpeech})
		return
	}
	c.emit(Event{Kind: EventResult, SessionID: s.id, Lang: s.lang, Text: cleaned})
}

func (c *Controller) handleError(gen uint64, err error) {
	s := c.resolve(gen)
	if s == nil {
		return
	}
	c.logger.Warn().Err(err).Str("session", s.id).Msg("Recognition failed")
	c.emit(Event{Kind: EventError, SessionID: s.id, Lang: s.lang, Err: err})
}

func (c *Controller) handleEnd(gen uint64) {
	c.mu.Lock()
	s := c.active
	if s == nil || s.gen != gen {
		c.mu.Unlock()
		return
	}
	c.active = nil
	resolved := s.resolved
	s.resolved = true
	c.mu.Unlock()

	if !resolved {
		c.emit(Event{Kind: EventError, SessionID: s.id, Lang: s.lang, Err: ErrNoSpeech})
	}
	c.emit(Event{Kind: EventEnded, SessionID: s.id, Lang: s.lang})
}
