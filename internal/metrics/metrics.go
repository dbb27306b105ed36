// Package metrics exposes Prometheus metrics for the portal and the dialogue
// sessions it runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/normanking/procurevoice/internal/bus"
	"github.com/normanking/procurevoice/internal/dialogue"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurevoice_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "procurevoice_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "procurevoice_active_sessions",
			Help: "Number of connected dialogue sessions",
		},
	)

	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurevoice_turns_total",
			Help: "Transcript turns appended, by role and source",
		},
		[]string{"role", "source"},
	)

	ResolveLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procurevoice_resolve_latency_seconds",
			Help:    "Time to resolve a user turn",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	NoticesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurevoice_notices_total",
			Help: "Transient notices shown to users, by kind",
		},
		[]string{"kind"},
	)

	SpeechEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurevoice_speech_events_total",
			Help: "Speech output lifecycle events",
		},
		[]string{"event"},
	)

	RecognitionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurevoice_recognition_events_total",
			Help: "Speech recognition lifecycle events",
		},
		[]string{"event"},
	)

	LanguageSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procurevoice_language_switches_total",
			Help: "Language switches, by target language",
		},
		[]string{"to"},
	)
)

var speechEvents = map[bus.EventType]string{
	bus.EventTypeSpeechStarted:   "started",
	bus.EventTypeSpeechEnded:     "ended",
	bus.EventTypeSpeechErrored:   "errored",
	bus.EventTypeSpeechCancelled: "cancelled",
}

var recognitionEvents = map[bus.EventType]string{
	bus.EventTypeListeningStarted: "started",
	bus.EventTypeListeningResult:  "result",
	bus.EventTypeListeningError:   "error",
	bus.EventTypeListeningEnded:   "ended",
}

// Attach records the events of one session bus.
func Attach(b *bus.EventBus) {
	b.SubscribeMultiple(bus.AllEventTypes, Record)
}

// Record updates the metrics for one event.
func Record(ev bus.Event) {
	switch ev.Type {
	case bus.EventTypeTurnAppended:
		if turn, ok := ev.Data["turn"].(dialogue.Turn); ok {
			TurnsTotal.WithLabelValues(string(turn.Role), turn.Source).Inc()
		}
	case bus.EventTypeResolved:
		source, _ := ev.Data["source"].(string)
		if d, ok := ev.Data["duration"].(time.Duration); ok {
			ResolveLatency.WithLabelValues(source).Observe(d.Seconds())
		}
	case bus.EventTypeNotice:
		kind, _ := ev.Data["kind"].(string)
		NoticesTotal.WithLabelValues(kind).Inc()
	case bus.EventTypeLanguageSwitched:
		LanguageSwitches.WithLabelValues(fmt.Sprint(ev.Data["to"])).Inc()
	default:
		if name, ok := speechEvents[ev.Type]; ok {
			SpeechEvents.WithLabelValues(name).Inc()
		} else if name, ok := recognitionEvents[ev.Type]; ok {
			RecognitionEvents.WithLabelValues(name).Inc()
		}
	}
}

