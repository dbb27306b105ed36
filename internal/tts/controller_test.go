package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine records engine calls and lets tests fire callbacks by hand.
type fakeEngine struct {
	mu         sync.Mutex
	voices     []VoiceDescriptor
	onChanged  []func()
	calls      []string
	speaking   string
	overlaps   int
	callbacks  map[string]Callbacks
	utterances []Utterance
	speakErr   error
	voicesHook func()
}

func newFakeEngine(voices ...VoiceDescriptor) *fakeEngine {
	return &fakeEngine{voices: voices, callbacks: make(map[string]Callbacks)}
}

func (f *fakeEngine) Voices() []VoiceDescriptor {
	f.mu.Lock()
	out := append([]VoiceDescriptor(nil), f.voices...)
	hook := f.voicesHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out
}

func (f *fakeEngine) OnVoicesChanged(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChanged = append(f.onChanged, fn)
}

func (f *fakeEngine) setVoices(voices ...VoiceDescriptor) {
	f.mu.Lock()
	f.voices = voices
	fns := append([]func(){}, f.onChanged...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeEngine) Speak(u Utterance, cb Callbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "speak:"+u.ID)
	if f.speakErr != nil {
		return f.speakErr
	}
	if f.speaking != "" {
		f.overlaps++
	}
	f.speaking = u.ID
	f.callbacks[u.ID] = cb
	f.utterances = append(f.utterances, u)
	return nil
}

func (f *fakeEngine) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "cancel")
	f.speaking = ""
}

func (f *fakeEngine) callbacksFor(id string) Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbacks[id]
}

func (f *fakeEngine) lastUtterance() Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.utterances[len(f.utterances)-1]
}

func (f *fakeEngine) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds(id string) []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventKind
	for _, ev := range l.events {
		if id == "" || ev.UtteranceID == id {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func newTestController(engine Engine, settle time.Duration) (*Controller, *eventLog) {
	cfg := DefaultConfig()
	cfg.SettleDelay = settle
	c := NewController(engine, cfg, zerolog.Nop())
	log := &eventLog{}
	c.OnEvent(log.record)
	return c, log
}

func TestController_SpeakLifecycle(t *testing.T) {
	engine := newFakeEngine(Describe("Rishi", "en-IN"), Describe("Lekha", "hi-IN"))
	c, log := newTestController(engine, 0)

	id, err := c.Speak(context.Background(), Speech{Text: "Hello", Lang: "en-IN"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	u := engine.lastUtterance()
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "Rishi", u.Voice)
	assert.Equal(t, "en-IN", u.Lang)
	assert.Equal(t, 1.0, u.Rate)

	active, ok := c.Active()
	assert.True(t, ok)
	assert.Equal(t, id, active)

	cb := engine.callbacksFor(id)
	cb.OnStart()
	cb.OnEnd()

	assert.Equal(t, []EventKind{EventStarted, EventEnded}, log.kinds(id))
	_, ok = c.Active()
	assert.False(t, ok)
}

func TestController_SpeakUsesGivenID(t *testing.T) {
	engine := newFakeEngine()
	c, _ := newTestController(engine, 0)

	id, err := c.Speak(context.Background(), Speech{ID: "turn-1", Text: "Hi", Lang: "en-IN"})
	require.NoError(t, err)
	assert.Equal(t, "turn-1", id)
}

func TestController_SpeakCancelsPrevious(t *testing.T) {
	engine := newFakeEngine(Describe("Rishi", "en-IN"))
	c, log := newTestController(engine, 0)

	first, err := c.Speak(context.Background(), Speech{Text: "one", Lang: "en-IN"})
	require.NoError(t, err)
	engine.callbacksFor(first).OnStart()

	second, err := c.Speak(context.Background(), Speech{Text: "two", Lang: "en-IN"})
	require.NoError(t, err)

	assert.Equal(t, []string{"speak:" + first, "cancel", "speak:" + second}, engine.callLog())
	assert.Equal(t, []EventKind{EventStarted, EventCancelled}, log.kinds(first))

	// the engine reports the interrupted utterance late; it must be ignored
	engine.callbacksFor(first).OnError(ErrInterrupted)
	engine.callbacksFor(first).OnEnd()
	assert.Equal(t, []EventKind{EventStarted, EventCancelled}, log.kinds(first))

	active, ok := c.Active()
	require.True(t, ok)
	assert.Equal(t, second, active)

	engine.callbacksFor(second).OnEnd()
	assert.Equal(t, []EventKind{EventEnded}, log.kinds(second))
}

func TestController_EndedExactlyOnce(t *testing.T) {
	engine := newFakeEngine()
	c, log := newTestController(engine, 0)

	id, err := c.Speak(context.Background(), Speech{Text: "x", Lang: "en-IN"})
	require.NoError(t, err)

	cb := engine.callbacksFor(id)
	cb.OnStart()
	cb.OnStart()
	cb.OnEnd()
	cb.OnEnd()
	cb.OnError(errors.New("late"))

	assert.Equal(t, []EventKind{EventStarted, EventEnded}, log.kinds(id))
}

func TestController_ErrorThenEnded(t *testing.T) {
	engine := newFakeEngine()
	c, log := newTestController(engine, 0)

	id, err := c.Speak(context.Background(), Speech{Text: "x", Lang: "en-IN"})
	require.NoError(t, err)
	engine.callbacksFor(id).OnError(errors.New("audio device lost"))

	assert.Equal(t, []EventKind{EventErrored, EventEnded}, log.kinds(id))
}

func TestController_EngineRefusesToSpeak(t *testing.T) {
	engine := newFakeEngine()
	engine.speakErr = ErrEngineUnavailable
	c, log := newTestController(engine, 0)

	id, err := c.Speak(context.Background(), Speech{Text: "x", Lang: "en-IN"})
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Equal(t, []EventKind{EventErrored, EventEnded}, log.kinds(id))

	_, ok := c.Active()
	assert.False(t, ok)
}

func TestController_Cancel(t *testing.T) {
	engine := newFakeEngine()
	c, log := newTestController(engine, 0)

	c.Cancel()
	assert.Empty(t, engine.callLog(), "nothing active, nothing to cancel")

	id, err := c.Speak(context.Background(), Speech{Text: "x", Lang: "en-IN"})
	require.NoError(t, err)
	c.Cancel()

	assert.Equal(t, []EventKind{EventCancelled}, log.kinds(id))
	engine.callbacksFor(id).OnEnd()
	assert.Equal(t, []EventKind{EventCancelled}, log.kinds(id))
	assert.Zero(t, log.count(EventEnded))
}

func TestController_NoOverlapUnderRapidSpeak(t *testing.T) {
	engine := newFakeEngine(Describe("Rishi", "en-IN"))
	c, log := newTestController(engine, 0)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Speak(context.Background(), Speech{Text: "rapid", Lang: "en-IN"}); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
			if i%7 == 0 {
				c.Cancel()
			}
		}()
	}
	wg.Wait()

	engine.mu.Lock()
	overlaps := engine.overlaps
	engine.mu.Unlock()
	assert.Zero(t, overlaps, "engine was asked to speak while another utterance was active")

	_, active := c.Active()
	activeCount := 0
	if active {
		activeCount = 1
	}
	assert.Equal(t, started, log.count(EventCancelled)+activeCount)

	// every engine speak is preceded by a cancel unless nothing was active
	calls := engine.callLog()
	speaking := false
	for _, call := range calls {
		if call == "cancel" {
			speaking = false
			continue
		}
		assert.False(t, speaking, "speak without cancel-before-start")
		speaking = true
	}
}

func TestController_SettleDelayPicksLateCatalog(t *testing.T) {
	engine := newFakeEngine()
	c, _ := newTestController(engine, 2*time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		engine.setVoices(Describe("Lekha", "hi-IN"))
	}()

	start := time.Now()
	_, err := c.Speak(context.Background(), Speech{Text: "नमस्ते", Lang: "hi-IN"})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second, "catalog notification ends the wait early")
	assert.Equal(t, "Lekha", engine.lastUtterance().Voice)
}

func TestController_CatalogArrivesWhileSpeakLooksUp(t *testing.T) {
	tests := []struct {
		name   string
		onRead int // catalog read during which the voices arrive
	}{
		{"during voice selection", 1},
		{"before the wait starts", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			c, _ := newTestController(engine, 2*time.Second)

			reads := 0
			engine.voicesHook = func() {
				reads++
				if reads == tt.onRead {
					engine.setVoices(Describe("Lekha", "hi-IN"))
				}
			}

			start := time.Now()
			_, err := c.Speak(context.Background(), Speech{Text: "नमस्ते", Lang: "hi-IN"})
			require.NoError(t, err)

			assert.Less(t, time.Since(start), time.Second)
			assert.Equal(t, "Lekha", engine.lastUtterance().Voice)
		})
	}
}

func TestController_EmptyCatalogThenPopulated(t *testing.T) {
	engine := newFakeEngine()
	c, _ := newTestController(engine, 30*time.Millisecond)

	start := time.Now()
	_, err := c.Speak(context.Background(), Speech{Text: "first", Lang: "hi-IN"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Empty(t, engine.lastUtterance().Voice, "no voice yet, engine default is used")

	time.Sleep(50 * time.Millisecond)
	engine.setVoices(Describe("Madhur", "hi-IN"))

	_, err = c.Speak(context.Background(), Speech{Text: "second", Lang: "hi-IN"})
	require.NoError(t, err)
	assert.Equal(t, "Madhur", engine.lastUtterance().Voice)
}

func TestController_SettleRespectsContext(t *testing.T) {
	engine := newFakeEngine()
	c, _ := newTestController(engine, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Speak(ctx, Speech{Text: "x", Lang: "en-IN"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, engine.callLog())
}

func TestController_CancelDuringSettle(t *testing.T) {
	engine := newFakeEngine()
	c, _ := newTestController(engine, 200*time.Millisecond)

	// Speak reads the catalog twice before it starts waiting
	reads := make(chan struct{}, 10)
	engine.voicesHook = func() { reads <- struct{}{} }

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Speak(context.Background(), Speech{Text: "x", Lang: "en-IN"})
		errCh <- err
	}()
	<-reads
	<-reads
	c.Cancel()

	assert.ErrorIs(t, <-errCh, ErrSuperseded)
	assert.Empty(t, engine.callLog())
}

func TestController_VoiceCacheInvalidatedOnCatalogChange(t *testing.T) {
	engine := newFakeEngine(Describe("Rishi", "en-IN"))
	c, _ := newTestController(engine, 0)

	v, ok := c.Voice("en-IN")
	require.True(t, ok)
	assert.Equal(t, "Rishi", v.Name)

	engine.setVoices(Describe("Veena", "en-IN"))
	v, ok = c.Voice("en-IN")
	require.True(t, ok)
	assert.Equal(t, "Veena", v.Name)
}

func TestController_VoiceNotCachedWhenCatalogChangesDuringLookup(t *testing.T) {
	engine := newFakeEngine(Describe("Rishi", "en-IN"))
	c, _ := newTestController(engine, 0)

	var once sync.Once
	engine.voicesHook = func() {
		once.Do(func() { engine.setVoices(Describe("Veena", "en-IN")) })
	}

	v, ok := c.Voice("en-IN")
	require.True(t, ok)
	assert.Equal(t, "Rishi", v.Name)

	v, ok = c.Voice("en-IN")
	require.True(t, ok)
	assert.Equal(t, "Veena", v.Name)
}

func TestController_CustomPolicy(t *testing.T) {
	engine := newFakeEngine(Describe("Rishi", "en-IN"), Describe("Veena", "en-IN"))
	cfg := DefaultConfig()
	cfg.Policy = func(tag string, catalog []VoiceDescriptor) (VoiceDescriptor, bool) {
		for _, v := range catalog {
			if v.Gender == GenderFemale {
				return v, true
			}
		}
		return VoiceDescriptor{}, false
	}
	c := NewController(engine, cfg, zerolog.Nop())

	_, err := c.Speak(context.Background(), Speech{Text: "x", Lang: "en-IN"})
	require.NoError(t, err)
	assert.Equal(t, "Veena", engine.lastUtterance().Voice)
}
