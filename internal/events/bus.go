// Package events provides the in-process publish/subscribe bus used to fan
// out moderation state changes. Each subscriber drains its own buffered
// channel on a dedicated goroutine, so a slow or panicking handler can
// never block the publisher or starve sibling subscribers.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event names emitted by the pipeline. Operation events additionally use
// the "{action}:success" / "{action}:error" convention.
const (
	ContentFlagged   = "content:flagged"
	ContentModerated = "content:moderated"
	ContentEscalated = "content:escalated"
)

// Event is one published message.
type Event struct {
	Name    string
	Payload any
	At      time.Time
}

// Handler consumes events. Handlers run on the subscriber's goroutine and
// may block or fail without affecting other subscribers.
type Handler func(Event)

// DefaultBufferSize is the per-subscriber channel depth.
const DefaultBufferSize = 64

// Subscription identifies a registered handler for later removal.
type Subscription struct {
	name string
	ch   chan Event
	done chan struct{}
}

// Bus fans events out to subscribers by event name.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription

	// onEmit and onDrop, if set, observe every published event and every
	// event dropped due to a full subscriber buffer. Used to feed metrics.
	onEmit func(name string)
	onDrop func(name string)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*Subscription)}
}

// OnEmit registers a callback invoked once per published event. Must be
// called before any Emit.
func (b *Bus) OnEmit(fn func(name string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEmit = fn
}

// OnDrop registers a callback invoked whenever an event is dropped because
// a subscriber's buffer was full. Must be called before any Emit.
func (b *Bus) OnDrop(fn func(name string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscribe registers a handler for the named event. Delivery to a single
// subscriber preserves emit order; fan-out across subscribers follows
// registration order.
func (b *Bus) Subscribe(name string, h Handler) *Subscription {
	sub := &Subscription{
		name: name,
		ch:   make(chan Event, DefaultBufferSize),
		done: make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		for ev := range sub.ch {
			invoke(h, ev)
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = append(b.subs[name], sub)
	return sub
}

// invoke runs one handler with panic isolation.
func invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("event", ev.Name).Any("panic", r).Msg("events: subscriber panicked")
		}
	}()
	h(ev)
}

// Unsubscribe removes the subscription and waits for its worker to finish
// handling any already-delivered events.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	list := b.subs[sub.name]
	for i, s := range list {
		if s == sub {
			b.subs[sub.name] = append(list[:i], list[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	close(sub.ch)
	<-sub.done
}

// Emit publishes the event to every subscriber of the name. Emit never
// blocks: if a subscriber's buffer is full the event is dropped for that
// subscriber and logged.
func (b *Bus) Emit(name string, payload any) {
	ev := Event{Name: name, Payload: payload, At: time.Now()}

	b.mu.RLock()
	subs := b.subs[name]
	onEmit := b.onEmit
	onDrop := b.onDrop
	b.mu.RUnlock()

	if onEmit != nil {
		onEmit(name)
	}

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			log.Warn().Str("event", name).Msg("events: subscriber buffer full, dropping event")
			if onDrop != nil {
				onDrop(name)
			}
		}
	}
}

// Close unsubscribes everything and waits for all workers to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	all := b.subs
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, list := range all {
		for _, sub := range list {
			close(sub.ch)
			<-sub.done
		}
	}
}
