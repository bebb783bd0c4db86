// Package bus implements the in-process publish/subscribe mechanism shared
// by the sync engine and the realtime channel. It decouples transport from
// the layers that present state changes to the user.
package bus

import (
	"log/slog"
	"reflect"
	"sync"
)

// Handler receives the payload published for an event.
type Handler func(data any)

// Bus is a callback registry keyed by event name. Registration has set
// semantics: subscribing the same function to the same event twice yields a
// single invocation per emit. A panicking handler is isolated — it is logged
// and never affects sibling handlers or the emitter.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[uintptr]Handler
	logger   *slog.Logger
}

// New creates an empty Bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		handlers: make(map[string]map[uintptr]Handler),
		logger:   logger,
	}
}

// On registers fn for event. Duplicate registration of the same function is
// a no-op; handler identity is the function's code pointer, which is the
// closest Go analogue to callback identity in a listener registry.
func (b *Bus) On(event string, fn Handler) {
	if fn == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.handlers[event]
	if !ok {
		set = make(map[uintptr]Handler)
		b.handlers[event] = set
	}

	set[handlerKey(fn)] = fn
}

// Off removes fn from event's handler set. Removing a handler that was never
// registered is a no-op.
func (b *Bus) Off(event string, fn Handler) {
	if fn == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.handlers[event]
	if !ok {
		return
	}

	delete(set, handlerKey(fn))

	if len(set) == 0 {
		delete(b.handlers, event)
	}
}

// Emit invokes every handler currently registered for event. Handlers run
// synchronously in unspecified order. The handler set is copied before
// invocation so handlers may call On/Off without deadlocking.
func (b *Bus) Emit(event string, data any) {
	b.mu.RLock()
	snapshot := make([]Handler, 0, len(b.handlers[event]))
	for _, fn := range b.handlers[event] {
		snapshot = append(snapshot, fn)
	}
	b.mu.RUnlock()

	for _, fn := range snapshot {
		b.safeInvoke(event, fn, data)
	}
}

// SubscriberCount returns the number of handlers registered for event.
func (b *Bus) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.handlers[event])
}

// safeInvoke runs a single handler, converting a panic into a warning log.
func (b *Bus) safeInvoke(event string, fn Handler, data any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event handler panicked",
				slog.String("event", event),
				slog.Any("panic", r),
			)
		}
	}()

	fn(data)
}

// handlerKey returns the identity key for a handler function.
func handlerKey(fn Handler) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
