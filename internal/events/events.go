// Package events is the in-process pub/sub bus that lets the CLI and
// metrics observe a turn while it runs: thinking started, utterance
// units ready, tools dispatched, turn finished.
package events

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Event is one observable occurrence during a turn.
type Event struct {
	Type      string
	SessionID string
	Payload   map[string]any
	Timestamp time.Time
}

// Well-known event types.
const (
	TurnStarted     = "turn.started"
	TurnFinished    = "turn.finished"
	TurnDegraded    = "turn.degraded"
	UtteranceUnit   = "utterance.unit"
	ToolDispatched  = "tool.dispatched"
	ToolCompleted   = "tool.completed"
	ProviderRetried = "provider.retried"
	StateSaved      = "state.saved"
)

// Handler is a callback for events.
type Handler func(Event)

type namedHandler struct {
	id      string
	handler Handler
}

// Bus is a topic-based publish/subscribe bus. Handlers run
// synchronously in registration order; a panicking handler is logged
// and does not take the turn down.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[string][]namedHandler
	history    []Event
	maxHistory int
	logger     *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers:   make(map[string][]namedHandler),
		maxHistory: 1000,
		logger:     logger,
	}
}

// On registers a handler for the given event type. Use "*" to listen to
// everything. Returns the handler id for Off.
func (b *Bus) On(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := eventType + "-" + strconv.Itoa(len(b.handlers[eventType]))
	b.handlers[eventType] = append(b.handlers[eventType], namedHandler{id: id, handler: handler})
	return id
}

// Off removes a handler by its id.
func (b *Bus) Off(eventType, handlerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers := b.handlers[eventType]
	for i, h := range handlers {
		if h.id == handlerID {
			b.handlers[eventType] = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

// Emit publishes an event to all matching handlers.
func (b *Bus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	if len(b.history) >= b.maxHistory {
		b.history = b.history[1:]
	}
	b.history = append(b.history, event)
	b.mu.Unlock()

	b.mu.RLock()
	handlers := make([]namedHandler, 0)
	if h, ok := b.handlers[event.Type]; ok {
		handlers = append(handlers, h...)
	}
	if h, ok := b.handlers["*"]; ok {
		handlers = append(handlers, h...)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func(nh namedHandler) {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panic", "event", event.Type, "handler", nh.id, "panic", r)
				}
			}()
			nh.handler(event)
		}(h)
	}
}

// Replay returns recorded events of the given type since the given
// time. Use "*" for all types.
func (b *Bus) Replay(eventType string, since time.Time) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, e := range b.history {
		if e.Timestamp.Before(since) {
			continue
		}
		if eventType == "*" || e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}
