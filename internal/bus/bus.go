// Package bus provides an in-process event bus for session events
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types for a dialogue session
const (
	// Dialogue events
	EventTypeTurnAppended     EventType = "dialogue.turn_appended"
	EventTypeStateChanged     EventType = "dialogue.state_changed"
	EventTypeNotice           EventType = "dialogue.notice"
	EventTypeResolved         EventType = "dialogue.resolved"
	EventTypeLanguageSwitched EventType = "dialogue.language_switched"
	EventTypeSoundToggled     EventType = "dialogue.sound_toggled"
	EventTypeSessionReset     EventType = "dialogue.session_reset"

	// Speech output events
	EventTypeSpeechStarted   EventType = "tts.started"
	EventTypeSpeechEnded     EventType = "tts.ended"
	EventTypeSpeechErrored   EventType = "tts.errored"
	EventTypeSpeechCancelled EventType = "tts.cancelled"

	// Speech input events
	EventTypeListeningStarted EventType = "stt.started"
	EventTypeListeningResult  EventType = "stt.result"
	EventTypeListeningError   EventType = "stt.error"
	EventTypeListeningEnded   EventType = "stt.ended"
)

// AllEventTypes lists every event type, for subscribers that want them all
var AllEventTypes = []EventType{
	EventTypeTurnAppended,
	EventTypeStateChanged,
	EventTypeNotice,
	EventTypeResolved,
	EventTypeLanguageSwitched,
	EventTypeSoundToggled,
	EventTypeSessionReset,
	EventTypeSpeechStarted,
	EventTypeSpeechEnded,
	EventTypeSpeechErrored,
	EventTypeSpeechCancelled,
	EventTypeListeningStarted,
	EventTypeListeningResult,
	EventTypeListeningError,
	EventTypeListeningEnded,
}

// Event represents a bus event
type Event struct {
	Type      EventType
	SessionID string
	Data      map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

func (b *EventBus) handlersFor(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}

// Publish sends an event to all subscribed handlers without waiting
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.handlersFor(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete.
// Successive PublishSync calls are therefore observed in order.
func (b *EventBus) PublishSync(event Event) {
	handlers := b.handlersFor(event.Type)

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
