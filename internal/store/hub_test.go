package store

import (
	"testing"
	"time"

	"github.com/wethinkt/go-threadview/internal/thread"
)

func TestHub_SubscribeAndPublish(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	defer unsub()

	h.Publish(thread.ConversationEvent{Kind: thread.EventInsert, Conversation: thread.ConversationSummary{ID: "c1"}})

	select {
	case ev := <-ch:
		if ev.Kind != thread.EventInsert || ev.Conversation.ID != "c1" {
			t.Errorf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
	unsub()
	unsub()
	if h.Len() != 0 {
		t.Fatalf("Len after unsubscribe = %d", h.Len())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	h.Publish(thread.ConversationEvent{Kind: thread.EventDelete})
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	_, unsub := h.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			h.Publish(thread.ConversationEvent{Kind: thread.EventUpdate})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	h.Close()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}
	unsub()

	late, _ := h.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
}
