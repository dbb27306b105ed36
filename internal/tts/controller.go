package tts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventKind is an utterance lifecycle signal.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventEnded     EventKind = "ended"
	EventErrored   EventKind = "errored"
	EventCancelled EventKind = "cancelled"
)

// Event reports a lifecycle change of one utterance.
type Event struct {
	Kind        EventKind
	UtteranceID string
	Lang        string
	Voice       string
	Err         error
}

// Listener receives controller events. Listeners run synchronously and must
// not call back into the Controller.
type Listener func(Event)

// Config configures a Controller.
type Config struct {
	Rate   float64
	Pitch  float64
	Volume float64

	// SettleDelay is how long Speak waits, once, for an empty voice catalog
	// to populate before speaking with the engine default.
	SettleDelay time.Duration

	Policy Policy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Rate:        1.0,
		Pitch:       1.0,
		Volume:      1.0,
		SettleDelay: 150 * time.Millisecond,
		Policy:      SelectVoice,
	}
}

// Speech is a request to speak.
type Speech struct {
	ID   string // generated when empty
	Text string
	Lang string
}

type utterance struct {
	id      string
	gen     uint64
	lang    string
	voice   string
	started bool
}

// Controller owns the single active utterance. Every Speak cancels the
// previous utterance before starting, so two never overlap.
//
// Engine calls are serialized by engineMu; state is guarded by mu. Callbacks
// carry the generation they were issued for and are dropped once a later
// Speak or Cancel has bumped it.
type Controller struct {
	engine Engine
	cfg    Config
	logger zerolog.Logger

	engineMu sync.Mutex

	mu        sync.Mutex
	gen       uint64
	active    *utterance
	voices    map[string]VoiceDescriptor
	catalog   uint64 // bumped on every catalog change
	listeners []Listener

	catalogChanged chan struct{}
}

// NewController creates a controller around engine.
func NewController(engine Engine, cfg Config, logger zerolog.Logger) *Controller {
	if cfg.Policy == nil {
		cfg.Policy = SelectVoice
	}
	c := &Controller{
		engine:         engine,
		cfg:            cfg,
		logger:         logger.With().Str("component", "tts").Logger(),
		voices:         make(map[string]VoiceDescriptor),
		catalogChanged: make(chan struct{}, 1),
	}
	engine.OnVoicesChanged(c.handleVoicesChanged)
	return c
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

func (c *Controller) handleVoicesChanged() {
	c.mu.Lock()
	c.catalog++
	c.voices = make(map[string]VoiceDescriptor)
	c.mu.Unlock()

	select {
	case c.catalogChanged <- struct{}{}:
	default:
	}
	c.logger.Debug().Msg("Voice catalog changed")
}

// Voice returns the voice Speak would use for tag right now.
func (c *Controller) Voice(tag string) (VoiceDescriptor, bool) {
	c.mu.Lock()
	if v, ok := c.voices[tag]; ok {
		c.mu.Unlock()
		return v, true
	}
	catalog := c.catalog
	c.mu.Unlock()

	v, ok := c.cfg.Policy(tag, c.engine.Voices())
	if ok {
		c.mu.Lock()
		// a choice made from a catalog that changed meanwhile is not cached
		if c.catalog == catalog {
			c.voices[tag] = v
		}
		c.mu.Unlock()
	}
	return v, ok
}

// Active returns the ID of the utterance currently speaking.
func (c *Controller) Active() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.active.id, true
}

// Speak cancels any active utterance and starts s. When the voice catalog is
// still empty it waits up to SettleDelay for it to populate, once.
func (c *Controller) Speak(ctx context.Context, s Speech) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	c.engineMu.Lock()
	gen := c.supersede()
	catalog := c.catalogVersion()
	voice, ok := c.Voice(s.Lang)
	switch {
	case ok:
	case c.cfg.SettleDelay > 0 && len(c.engine.Voices()) == 0:
		c.engineMu.Unlock()
		if err := c.settle(ctx, catalog); err != nil {
			return "", err
		}
		c.engineMu.Lock()
		voice, ok = c.Voice(s.Lang)
	case c.catalogVersion() != catalog:
		// the catalog arrived during the lookup
		voice, ok = c.Voice(s.Lang)
	}
	defer c.engineMu.Unlock()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return "", ErrSuperseded
	}
	u := &utterance{id: s.ID, gen: gen, lang: s.Lang}
	if ok {
		u.voice = voice.Name
	}
	c.active = u
	c.mu.Unlock()

	c.logger.Debug().
		Str("id", s.ID).
		Str("lang", s.Lang).
		Str("voice", u.voice).
		Int("textLen", len(s.Text)).
		Msg("Speaking")

	err := c.engine.Speak(Utterance{
		ID:     s.ID,
		Text:   s.Text,
		Lang:   s.Lang,
		Voice:  u.voice,
		Rate:   c.cfg.Rate,
		Pitch:  c.cfg.Pitch,
		Volume: c.cfg.Volume,
	}, Callbacks{
		OnStart: func() { c.handleStart(gen) },
		OnEnd:   func() { c.finish(gen, nil) },
		OnError: func(err error) { c.finish(gen, err) },
	})
	if err != nil {
		c.finish(gen, err)
		return s.ID, err
	}
	return s.ID, nil
}

// Cancel stops the active utterance, if any.
func (c *Controller) Cancel() {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	c.supersede()
}

// supersede bumps the generation and cancels the active utterance. Callers
// hold engineMu.
func (c *Controller) supersede() uint64 {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	prev := c.active
	c.active = nil
	c.mu.Unlock()

	if prev != nil {
		c.engine.Cancel()
		c.logger.Debug().Str("id", prev.id).Msg("Utterance cancelled")
		c.emit(Event{Kind: EventCancelled, UtteranceID: prev.id, Lang: prev.lang, Voice: prev.voice})
	}
	return gen
}

func (c *Controller) catalogVersion() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog
}

// settle waits until the catalog moves past version since, ctx is done or
// SettleDelay passes.
func (c *Controller) settle(ctx context.Context, since uint64) error {
	timer := time.NewTimer(c.cfg.SettleDelay)
	defer timer.Stop()

	for c.catalogVersion() == since {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.catalogChanged:
		case <-timer.C:
			return nil
		}
	}
	return nil
}

func (c *Controller) handleStart(gen uint64) {
	c.mu.Lock()
	u := c.active
	if u == nil || u.gen != gen || u.started {
		c.mu.Unlock()
		return
	}
	u.started = true
	ev := Event{Kind: EventStarted, UtteranceID: u.id, Lang: u.lang, Voice: u.voice}
	c.mu.Unlock()

	c.emit(ev)
}

// finish ends the utterance of generation gen exactly once.
func (c *Controller) finish(gen uint64, err error) {
	c.mu.Lock()
	u := c.active
	if u == nil || u.gen != gen {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("id", u.id).Msg("Utterance failed")
		c.emit(Event{Kind: EventErrored, UtteranceID: u.id, Lang: u.lang, Voice: u.voice, Err: err})
	}
	c.emit(Event{Kind: EventEnded, UtteranceID: u.id, Lang: u.lang, Voice: u.voice})
}
