// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package events

import (
	"log/slog"
	"sync"
)

// Bus distributes events to subscribers. Delivery is fire-and-forget: a
// subscriber whose buffer is full misses the event rather than blocking
// the mutation path.
type Bus struct {
	mu   sync.RWMutex
	subs map[Kind][]chan Event
}

// NewBus creates a new bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Kind][]chan Event),
	}
}

// Subscribe creates a channel receiving events of the given kind. Use
// KindAny to receive everything.
func (b *Bus) Subscribe(kind Kind) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subs[kind] = append(b.subs[kind], ch)
	return ch
}

// Unsubscribe removes and closes a channel.
func (b *Bus) Unsubscribe(kind Kind, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[kind]
	for i, sub := range subs {
		if sub == ch {
			b.subs[kind] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish sends an event to subscribers of its kind and of KindAny.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.deliver(event, b.subs[event.Kind])
	b.deliver(event, b.subs[KindAny])
}

func (b *Bus) deliver(event Event, subs []chan Event) {
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			slog.Warn("event dropped: subscriber buffer full",
				"kind", event.Kind,
				"event_id", event.ID.String(),
			)
		}
	}
}
