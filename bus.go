package feat

import "sync"

// Event names a bus channel.
type Event string

const (
	// EventUpdate fires once per tick with the tick length in seconds.
	EventUpdate Event = "update"
	// EventLoaded fires after a save has been applied, with diff 0.
	EventLoaded Event = "loaded"
)

// Handler receives the tick length in seconds.
type Handler func(diff float64)

type subscription struct {
	id int
	fn Handler
}

// Bus is a synchronous event emitter. Handlers run in subscription order on
// the emitting goroutine.
type Bus struct {
	mu       sync.Mutex
	handlers map[Event][]subscription
	seq      int
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: map[Event][]subscription{}}
}

// On subscribes fn to event and returns the unsubscribe func.
func (b *Bus) On(event Event, fn Handler) (off func()) {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = map[Event][]subscription{}
	}
	b.seq++
	id := b.seq
	b.handlers[event] = append(b.handlers[event], subscription{id: id, fn: fn})
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.handlers[event]
			for i, sub := range subs {
				if sub.id == id {
					b.handlers[event] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit runs every handler for event. Handlers added during emission wait for
// the next Emit.
func (b *Bus) Emit(event Event, diff float64) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.handlers[event]...)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.fn(diff)
	}
}

// Count reports the number of handlers subscribed to event.
func (b *Bus) Count(event Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[event])
}
