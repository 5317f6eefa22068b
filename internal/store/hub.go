package store

import (
	"sync"

	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// Hub fans conversation-list events out to subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   []*subscriber
	closed bool
}

type subscriber struct {
	ch     chan thread.ConversationEvent
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe returns a channel of events and a function that unsubscribes and
// closes the channel.
func (h *Hub) Subscribe() (<-chan thread.ConversationEvent, func()) {
	ch := make(chan thread.ConversationEvent, 64)
	sub := &subscriber{ch: ch}

	h.mu.Lock()
	if h.closed {
		sub.closed = true
		close(ch)
	} else {
		h.subs = append(h.subs, sub)
	}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.subs {
			if s == sub {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				break
			}
		}
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
}

// Publish delivers an event to every subscriber. Subscribers whose buffer is
// full miss the event.
func (h *Hub) Publish(ev thread.ConversationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			tuilog.Log.Warn("Hub.Publish: dropping event for slow subscriber", "kind", ev.Kind, "id", ev.Conversation.ID)
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, sub := range h.subs {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	h.subs = nil
}
