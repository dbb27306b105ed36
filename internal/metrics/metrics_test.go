package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/normanking/procurevoice/internal/bus"
	"github.com/normanking/procurevoice/internal/dialogue"
	"github.com/normanking/procurevoice/internal/lang"
)

func TestAttach_CountsTurns(t *testing.T) {
	b := bus.NewEventBus()
	Attach(b)

	counter := TurnsTotal.WithLabelValues("assistant", "greeting")
	before := testutil.ToFloat64(counter)

	b.PublishSync(bus.Event{
		Type: bus.EventTypeTurnAppended,
		Data: map[string]any{"turn": dialogue.Turn{Role: dialogue.RoleAssistant, Source: dialogue.SourceGreeting}},
	})

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRecord(t *testing.T) {
	notices := NoticesTotal.WithLabelValues("busy")
	cancelled := SpeechEvents.WithLabelValues("cancelled")
	results := RecognitionEvents.WithLabelValues("result")
	switches := LanguageSwitches.WithLabelValues("hi-IN")

	n0 := testutil.ToFloat64(notices)
	c0 := testutil.ToFloat64(cancelled)
	r0 := testutil.ToFloat64(results)
	s0 := testutil.ToFloat64(switches)

	Record(bus.Event{Type: bus.EventTypeNotice, Data: map[string]any{"kind": "busy"}})
	Record(bus.Event{Type: bus.EventTypeSpeechCancelled, Data: map[string]any{}})
	Record(bus.Event{Type: bus.EventTypeListeningResult, Data: map[string]any{}})
	Record(bus.Event{Type: bus.EventTypeLanguageSwitched, Data: map[string]any{"to": lang.Hindi}})
	Record(bus.Event{Type: bus.EventTypeResolved, Data: map[string]any{"source": "rule", "duration": 3 * time.Millisecond}})

	assert.Equal(t, n0+1, testutil.ToFloat64(notices))
	assert.Equal(t, c0+1, testutil.ToFloat64(cancelled))
	assert.Equal(t, r0+1, testutil.ToFloat64(results))
	assert.Equal(t, s0+1, testutil.ToFloat64(switches))
	assert.Positive(t, testutil.CollectAndCount(ResolveLatency))
}

func TestRecord_IgnoresMalformed(t *testing.T) {
	assert.NotPanics(t, func() {
		Record(bus.Event{Type: bus.EventTypeTurnAppended, Data: map[string]any{"turn": "nope"}})
		Record(bus.Event{Type: bus.EventTypeResolved})
		Record(bus.Event{Type: bus.EventTypeSessionReset})
	})
}
