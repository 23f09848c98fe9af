// Package eventbus fans lifecycle events (reminder created, delivered,
// cycle finished, config reloaded) out to in-process subscribers such as
// the metrics collector.
package eventbus

import (
	"sync"
	"time"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus never blocks a publisher: a subscriber whose buffer is full misses
// the event.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus { return &memBus{subs: map[*subscriber]struct{}{}} }

type subscriber struct {
	ch chan Event
}

type memBus struct {
	// Publish holds the read lock while sending; unsubscribe closes under
	// the write lock, so a send never hits a closed channel.
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, max(buffer, 1))}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}

// Publisher adapts b to a func that is a no-op for a nil bus.
func Publisher(b Bus) func(typ string, data any) {
	if b == nil {
		return func(string, any) {}
	}
	return func(typ string, data any) { b.Publish(Event{Type: typ, Data: data}) }
}
