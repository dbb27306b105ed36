package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/procurevoice/internal/bus"
	"github.com/normanking/procurevoice/internal/fingerprint"
	"github.com/normanking/procurevoice/internal/intent"
	"github.com/normanking/procurevoice/internal/lang"
	"github.com/normanking/procurevoice/internal/stt"
	"github.com/normanking/procurevoice/internal/training"
	"github.com/normanking/procurevoice/internal/tts"
	"github.com/normanking/procurevoice/internal/voice"
)

// Options wires an Orchestrator to its collaborators.
type Options struct {
	Resolver   Resolver
	Speaker    Speaker
	Recognizer Recognizer

	// Training is loaded once, in the background, on the first Start.
	Training        training.Source
	TrainingTimeout time.Duration

	// Bus receives every session event. A private bus is used when nil.
	Bus *bus.EventBus

	Lang  lang.Tag
	Sound bool

	Now func() time.Time
}

// Orchestrator is the dialogue state machine for one session.
//
// Speech controllers deliver events synchronously into the orchestrator, so
// the orchestrator never calls a controller while holding mu. Bus events are
// queued under mu and published once it is released.
type Orchestrator struct {
	resolver   Resolver
	speaker    Speaker
	recognizer Recognizer
	training   training.Source
	trainingTO time.Duration
	bus        *bus.EventBus
	now        func() time.Time
	logger     zerolog.Logger

	seedOnce sync.Once

	mu         sync.Mutex
	outbox     []bus.Event
	sessionID  string
	epoch      uint64
	state      State
	lang       lang.Tag
	sound      bool
	transcript []Turn
	conv       voice.Context
	cache      map[fingerprint.Key][]string
	lastFP     fingerprint.Key
	inflight   bool
	utterance  string
}

// New creates an orchestrator in the idle state.
func New(opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.Bus == nil {
		opts.Bus = bus.NewEventBus()
	}
	if opts.Recognizer == nil {
		opts.Recognizer = stt.NewController(nil, nil, logger)
	}
	if opts.Lang == "" {
		opts.Lang = lang.Default
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TrainingTimeout <= 0 {
		opts.TrainingTimeout = 5 * time.Second
	}

	o := &Orchestrator{
		resolver:   opts.Resolver,
		speaker:    opts.Speaker,
		recognizer: opts.Recognizer,
		training:   opts.Training,
		trainingTO: opts.TrainingTimeout,
		bus:        opts.Bus,
		now:        opts.Now,
		sessionID:  uuid.NewString(),
		state:      StateIdle,
		lang:       opts.Lang,
		sound:      opts.Sound,
		conv:       voice.NewContext(),
		cache:      make(map[fingerprint.Key][]string),
		lastFP:     fingerprint.Blank,
	}
	o.logger = logger.With().Str("component", "dialogue").Logger()

	if o.speaker != nil {
		o.speaker.OnEvent(o.handleSpeech)
	}
	o.recognizer.OnEvent(o.handleRecognition)
	return o
}

// Bus returns the session's event bus.
func (o *Orchestrator) Bus() *bus.EventBus {
	return o.bus
}

// unlock releases mu and publishes queued events in order.
func (o *Orchestrator) unlock() {
	events := o.outbox
	o.outbox = nil
	o.mu.Unlock()

	for _, ev := range events {
		o.bus.PublishSync(ev)
	}
}

func (o *Orchestrator) queueLocked(t bus.EventType, data map[string]any) {
	o.outbox = append(o.outbox, bus.Event{Type: t, SessionID: o.sessionID, Data: data})
}

func (o *Orchestrator) setStateLocked(s State) {
	if o.state == s {
		return
	}
	from := o.state
	o.state = s
	o.logger.Debug().Str("from", string(from)).Str("to", string(s)).Msg("State changed")
	o.queueLocked(bus.EventTypeStateChanged, map[string]any{"from": from, "to": s})
}

func (o *Orchestrator) noticeLocked(kind string, phrase lang.Phrase) {
	o.queueLocked(bus.EventTypeNotice, map[string]any{"kind": kind, "text": lang.Text(o.lang, phrase)})
}

func (o *Orchestrator) appendTurnLocked(role Role, text string, tag lang.Tag, source string) Turn {
	turn := Turn{
		ID:        uuid.NewString(),
		SessionID: o.sessionID,
		Role:      role,
		Text:      text,
		Lang:      string(tag),
		Source:    source,
		CreatedAt: o.now(),
	}
	o.transcript = append(o.transcript, turn)
	o.queueLocked(bus.EventTypeTurnAppended, map[string]any{"turn": turn})
	return turn
}

// beginSpeechLocked moves to speaking and returns the speech to start once
// mu is released, or nil when sound is off.
func (o *Orchestrator) beginSpeechLocked(turn Turn) *tts.Speech {
	if !o.sound || o.speaker == nil {
		o.utterance = ""
		o.setStateLocked(StateAwaitingInput)
		return nil
	}
	o.utterance = turn.ID
	o.setStateLocked(StateSpeaking)
	return &tts.Speech{ID: turn.ID, Text: turn.Text, Lang: turn.Lang}
}

func (o *Orchestrator) say(ctx context.Context, s *tts.Speech) {
	if s == nil {
		return
	}
	_, err := o.speaker.Speak(ctx, *s)
	if err == nil {
		return
	}
	// A cancel that lands before the utterance starts emits no event, so
	// release it here. speechDone ignores ids that are no longer current.
	if !errors.Is(err, tts.ErrSuperseded) {
		// the turn stays in the transcript as text only
		o.logger.Warn().Err(err).Str("utterance", s.ID).Msg("Speech failed")
	}
	o.speechDone(s.ID)
}

func (o *Orchestrator) speechDone(id string) {
	o.mu.Lock()
	if o.utterance == id {
		o.utterance = ""
		if o.state == StateSpeaking {
			o.setStateLocked(StateAwaitingInput)
		}
	}
	o.unlock()
}

// Start greets the user. It only has an effect in the idle state.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.unlock()
		return nil
	}
	o.setStateLocked(StateGreeting)
	turn := o.appendTurnLocked(RoleAssistant, lang.Text(o.lang, lang.Greeting), o.lang, SourceGreeting)
	speech := o.beginSpeechLocked(turn)
	o.logger.Info().Str("session", o.sessionID).Str("lang", string(o.lang)).Msg("Session started")
	o.unlock()

	o.seedOnce.Do(o.loadTraining)
	o.say(ctx, speech)
	return nil
}

func (o *Orchestrator) loadTraining() {
	seeder, ok := o.resolver.(Seeder)
	if o.training == nil || !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.trainingTO)
		defer cancel()

		payload, err := o.training.Load(ctx)
		if err != nil {
			o.logger.Warn().Err(err).Msg("Training data unavailable, using built-in replies")
			return
		}
		seeder.Seed(payload)
		o.logger.Info().
			Int("hotProducts", len(payload.HotProducts)).
			Int("insights", len(payload.MarketInsights)).
			Int("suppliers", len(payload.Suppliers)).
			Msg("Training data loaded")
	}()
}

// Submit handles one typed or recognized user turn and returns the assistant
// turn it produced.
func (o *Orchestrator) Submit(ctx context.Context, text string) (Turn, error) {
	o.mu.Lock()
	if strings.TrimSpace(text) == "" {
		o.noticeLocked(NoticeBlankInput, lang.BlankInput)
		o.unlock()
		return Turn{}, ErrBlankInput
	}
	switch {
	case o.state == StateIdle:
		o.unlock()
		return Turn{}, ErrNotStarted
	case o.state != StateAwaitingInput || o.inflight:
		o.noticeLocked(NoticeBusy, lang.Busy)
		o.unlock()
		return Turn{}, ErrBusy
	}

	fp := fingerprint.Of(text)
	repeat := !fp.IsBlank() && fp == o.lastFP
	req := intent.Request{
		Text:        text,
		Fingerprint: fp,
		Lang:        o.lang,
		Context:     o.conv.Clone(),
		Repeat:      repeat,
	}
	if repeat {
		req.Previous = append([]string(nil), o.cache[fp]...)
	}
	o.appendTurnLocked(RoleUser, text, o.lang, "")
	o.lastFP = fp
	o.inflight = true
	epoch := o.epoch
	o.setStateLocked(StateResolving)
	o.unlock()

	start := time.Now()
	res, err := o.resolve(ctx, req)
	elapsed := time.Since(start)

	o.mu.Lock()
	if o.epoch != epoch {
		o.unlock()
		return Turn{}, ErrSessionReset
	}
	o.inflight = false

	reply, source := res.Text, string(res.Source)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err == nil {
			err = errors.New("empty reply")
		}
		o.logger.Error().Err(err).Str("fingerprint", fp.String()).Msg("Resolution failed")
		reply, source = lang.Text(o.lang, lang.Apology), SourceApology
		o.conv = voice.Apply(o.conv, voice.Patch{Fingerprint: fp})
	} else {
		o.conv = voice.Apply(o.conv, res.Patch)
		if !fp.IsBlank() {
			o.cache[fp] = append(o.cache[fp], reply)
		}
	}
	o.queueLocked(bus.EventTypeResolved, map[string]any{
		"source":   source,
		"rule":     res.Rule,
		"repeat":   repeat,
		"duration": elapsed,
	})

	turn := o.appendTurnLocked(RoleAssistant, reply, req.Lang, source)

	var speech *tts.Speech
	if o.state == StateResolving {
		speech = o.beginSpeechLocked(turn)
	}
	o.unlock()

	o.say(ctx, speech)
	return turn, nil
}

func (o *Orchestrator) resolve(ctx context.Context, req intent.Request) (res intent.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrResolverPanic, r)
		}
	}()
	if o.resolver == nil {
		return intent.Result{}, errors.New("no resolver configured")
	}
	return o.resolver.Resolve(ctx, req)
}

// StartListening opens the microphone.
func (o *Orchestrator) StartListening() error {
	o.mu.Lock()
	switch {
	case o.state == StateListening:
		o.unlock()
		o.logger.Warn().Msg("Already listening")
		return stt.ErrAlreadyActive
	case o.state == StateIdle:
		o.unlock()
		return ErrNotStarted
	case o.state != StateAwaitingInput || o.inflight:
		o.noticeLocked(NoticeBusy, lang.Busy)
		o.unlock()
		return ErrBusy
	}
	if !o.recognizer.Available() {
		o.noticeLocked(NoticeMicUnsupported, lang.MicUnsupported)
		o.unlock()
		return stt.ErrUnsupported
	}
	tag := o.lang
	o.setStateLocked(StateListening)
	o.unlock()

	if _, err := o.recognizer.Start(string(tag)); err != nil {
		o.mu.Lock()
		if o.state == StateListening {
			o.setStateLocked(StateAwaitingInput)
		}
		switch {
		case errors.Is(err, stt.ErrUnsupported):
			o.noticeLocked(NoticeMicUnsupported, lang.MicUnsupported)
		case errors.Is(err, stt.ErrAlreadyActive):
		default:
			o.noticeLocked(NoticeMicError, lang.MicError)
		}
		o.unlock()
		return err
	}
	return nil
}

// StopListening closes the microphone without submitting anything.
func (o *Orchestrator) StopListening() {
	o.recognizer.Stop()
}

// SwitchLanguage cancels speech and recognition, switches to tag and
// confirms the switch in the new language. The transcript and context are
// kept.
func (o *Orchestrator) SwitchLanguage(ctx context.Context, tag lang.Tag) error {
	t, err := lang.Parse(string(tag))
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.lang == t {
		o.unlock()
		return nil
	}
	o.unlock()

	o.recognizer.Stop()
	if o.speaker != nil {
		o.speaker.Cancel()
	}

	var selected string
	if o.speaker != nil {
		if v, ok := o.speaker.Voice(string(t)); ok {
			selected = v.Name
		}
	}

	o.mu.Lock()
	from := o.lang
	o.lang = t
	o.queueLocked(bus.EventTypeLanguageSwitched, map[string]any{"from": from, "to": t, "voice": selected})
	o.logger.Info().Str("from", string(from)).Str("to", string(t)).Str("voice", selected).Msg("Language switched")

	var speech *tts.Speech
	if o.state != StateIdle {
		turn := o.appendTurnLocked(RoleAssistant, lang.Text(t, lang.SwitchConfirmation), t, SourceConfirmation)
		speech = o.beginSpeechLocked(turn)
	}
	o.unlock()

	o.say(ctx, speech)
	return nil
}

// SetSound turns speech output on or off. Turning it off cancels the
// active utterance; later turns are text only.
func (o *Orchestrator) SetSound(on bool) {
	o.mu.Lock()
	changed := o.sound != on
	o.sound = on
	if changed {
		o.queueLocked(bus.EventTypeSoundToggled, map[string]any{"on": on})
	}
	o.unlock()

	if !on && o.speaker != nil {
		o.speaker.Cancel()
	}
}

// Reset cancels speech and recognition, clears the transcript, context and
// response cache, and returns to idle under a new session ID.
func (o *Orchestrator) Reset() {
	o.recognizer.Stop()
	if o.speaker != nil {
		o.speaker.Cancel()
	}

	o.mu.Lock()
	o.queueLocked(bus.EventTypeSessionReset, map[string]any{"previous": o.sessionID})
	o.setStateLocked(StateIdle)
	o.epoch++
	o.sessionID = uuid.NewString()
	o.transcript = nil
	o.conv = voice.NewContext()
	o.cache = make(map[fingerprint.Key][]string)
	o.lastFP = fingerprint.Blank
	o.inflight = false
	o.utterance = ""
	o.logger.Info().Str("session", o.sessionID).Msg("Session reset")
	o.unlock()
}

func (o *Orchestrator) handleSpeech(ev tts.Event) {
	data := map[string]any{"utterance_id": ev.UtteranceID, "lang": ev.Lang, "voice": ev.Voice}

	o.mu.Lock()
	switch ev.Kind {
	case tts.EventStarted:
		o.queueLocked(bus.EventTypeSpeechStarted, data)
	case tts.EventErrored:
		data["error"] = errString(ev.Err)
		o.queueLocked(bus.EventTypeSpeechErrored, data)
	case tts.EventCancelled:
		o.queueLocked(bus.EventTypeSpeechCancelled, data)
		if ev.UtteranceID == o.utterance {
			o.utterance = ""
			if o.state == StateSpeaking {
				o.setStateLocked(StateAwaitingInput)
			}
		}
	case tts.EventEnded:
		o.queueLocked(bus.EventTypeSpeechEnded, data)
		if ev.UtteranceID == o.utterance {
			o.utterance = ""
			if o.state == StateSpeaking {
				o.setStateLocked(StateAwaitingInput)
			}
		}
	}
	o.unlock()
}

func (o *Orchestrator) handleRecognition(ev stt.Event) {
	data := map[string]any{"session_id": ev.SessionID, "lang": ev.Lang}

	o.mu.Lock()
	var submit string
	switch ev.Kind {
	case stt.EventStarted:
		o.queueLocked(bus.EventTypeListeningStarted, data)
	case stt.EventResult:
		data["text"] = ev.Text
		o.queueLocked(bus.EventTypeListeningResult, data)
		if o.state == StateListening {
			o.setStateLocked(StateAwaitingInput)
			submit = ev.Text
		}
	case stt.EventError:
		data["error"] = errString(ev.Err)
		o.queueLocked(bus.EventTypeListeningError, data)
		if o.state == StateListening {
			o.setStateLocked(StateAwaitingInput)
		}
		if errors.Is(ev.Err, stt.ErrNoSpeech) {
			o.noticeLocked(NoticeNoSpeech, lang.NoSpeech)
		} else {
			o.noticeLocked(NoticeMicError, lang.MicError)
		}
	case stt.EventEnded:
		data["stopped"] = ev.Stopped
		o.queueLocked(bus.EventTypeListeningEnded, data)
		if o.state == StateListening {
			o.setStateLocked(StateAwaitingInput)
		}
	}
	o.unlock()

	if submit != "" {
		go func() {
			if _, err := o.Submit(context.Background(), submit); err != nil {
				o.logger.Debug().Err(err).Msg("Recognized text not submitted")
			}
		}()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Language returns the current language.
func (o *Orchestrator) Language() lang.Tag {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lang
}

// Sound reports whether speech output is on.
func (o *Orchestrator) Sound() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sound
}

// SessionID returns the current session ID. It changes on Reset.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Transcript returns a copy of the transcript.
func (o *Orchestrator) Transcript() []Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Turn(nil), o.transcript...)
}

// Context returns a copy of the conversation context.
func (o *Orchestrator) Context() voice.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conv.Clone()
}

// CachedResponses returns the replies given so far for fp.
func (o *Orchestrator) CachedResponses(fp fingerprint.Key) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.cache[fp]...)
}

// CacheSize returns the number of fingerprints with cached replies.
func (o *Orchestrator) CacheSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cache)
}
