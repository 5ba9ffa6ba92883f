package manager

import (
	"log/slog"
	"sync"
)

// Event names emitted by the manager.
const (
	EventWidgetCreated        = "widgetCreated"
	EventWidgetUpdated        = "widgetUpdated"
	EventWidgetDeleted        = "widgetDeleted"
	EventDataBindingApplied   = "dataBindingApplied"
	EventDefinitionRegistered = "widgetDefinitionRegistered"
	EventWidgetImported       = "widgetImported"
	EventWidgetsLoaded        = "widgetsLoaded"
	EventAllWidgetsCleared    = "allWidgetsCleared"
)

// Listener receives event payloads. Payload types are event-specific; CRUD
// events carry the affected *entity.Entity.
type Listener func(payload any)

// eventBus is a minimal synchronous pub/sub. Listener panics are recovered
// and logged so one bad subscriber cannot take down a mutation.
type eventBus struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]Listener
	logger    *slog.Logger
}

func newEventBus(logger *slog.Logger) *eventBus {
	return &eventBus{
		listeners: make(map[string]map[int]Listener),
		logger:    logger,
	}
}

// subscribe registers a listener and returns an unsubscribe func.
func (b *eventBus) subscribe(event string, l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listeners[event] == nil {
		b.listeners[event] = make(map[int]Listener)
	}
	id := b.nextID
	b.nextID++
	b.listeners[event][id] = l

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners[event], id)
	}
}

func (b *eventBus) emit(event string, payload any) {
	b.mu.Lock()
	snapshot := make([]Listener, 0, len(b.listeners[event]))
	for _, l := range b.listeners[event] {
		snapshot = append(snapshot, l)
	}
	b.mu.Unlock()

	for _, l := range snapshot {
		b.safeCall(event, l, payload)
	}
}

func (b *eventBus) safeCall(event string, l Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked", "event", event, "panic", r)
		}
	}()
	l(payload)
}
