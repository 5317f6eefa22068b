package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/wethinkt/go-threadview/internal/thread"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/", "secret", opts...)
	c.backoff = time.Millisecond
	return c
}

func TestFetchPageRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/conversations/c1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("before"); got != "71" {
			t.Errorf("before = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "15" {
			t.Errorf("limit = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth = %q", got)
		}
		if got := r.Header.Get("X-User-ID"); got != "alice" {
			t.Errorf("user = %q", got)
		}
		json.NewEncoder(w).Encode(thread.Page{
			Messages: []thread.Message{{ID: "msg_56", Sequence: 56}},
			HasMore:  true,
		})
	}, WithUser("alice"))

	page, err := c.FetchPage(context.Background(), thread.PageRequest{ConversationID: "c1", Cursor: 71, PageSize: 15})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != "msg_56" || !page.HasMore {
		t.Errorf("page = %+v", page)
	}
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not_found", "message": "Message not found"})
	})

	err := c.SetBookmark(context.Background(), "c1", "nope", true)
	if !errors.Is(err, thread.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "not_found" {
		t.Errorf("api error = %+v", apiErr)
	}
}

func TestUpdateMessageSendsOnlySetFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.EscapedPath() != "/api/v1/conversations/c1/messages/m%2F1" {
			t.Errorf("%s %s", r.Method, r.URL.EscapedPath())
		}
		var body map[string]json.RawMessage
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["attachments"]; ok || body["parts"] == nil {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(thread.Message{ID: "m/1", Version: 2})
	})

	got, err := c.UpdateMessage(context.Background(), "c1", "m/1", thread.Patch{
		Parts: []thread.ContentPart{{Type: thread.PartText, Text: "edited"}},
	})
	if err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("version = %d", got.Version)
	}
}

func TestCreateAndRename(t *testing.T) {
	var bodies []map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/conversations":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(thread.ConversationSummary{ID: "c7", Title: body["title"]})
		case r.Method == http.MethodPatch && r.URL.Path == "/api/v1/conversations/c7":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	conv, err := c.CreateConversation(context.Background(), "Trip", "", "pack list?")
	if err != nil || conv.ID != "c7" {
		t.Fatalf("CreateConversation = %+v, %v", conv, err)
	}
	if err := c.RenameConversation(context.Background(), "c7", "Trip to Oslo"); err != nil {
		t.Fatalf("RenameConversation: %v", err)
	}
	if bodies[0]["initial_message"] != "pack list?" || bodies[1]["title"] != "Trip to Oslo" {
		t.Errorf("bodies = %v", bodies)
	}
}

func TestRetries(t *testing.T) {
	tests := []struct {
		name  string
		call  func(c *Client) error
		calls int32
	}{
		{"get retries on 5xx", func(c *Client) error {
			_, err := c.ListConversations(context.Background(), "", 10)
			return err
		}, 1 + maxRetries},
		{"post is sent once", func(c *Client) error {
			return c.DeleteMessages(context.Background(), "c1", []string{"a"})
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusBadGateway)
			})
			if err := tt.call(c); err == nil {
				t.Fatal("expected error")
			}
			if got := calls.Load(); got != tt.calls {
				t.Errorf("calls = %d, want %d", got, tt.calls)
			}
		})
	}
}

func TestRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"bookmarks": map[string]bool{"m1": true}})
	})
	got, err := c.Bookmarks(context.Background(), "c1", []string{"m1", "m2"})
	if err != nil {
		t.Fatalf("Bookmarks: %v", err)
	}
	if !got["m1"] || len(got) != 1 {
		t.Errorf("bookmarks = %v", got)
	}
}

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{6, maxReconnectDelay},
		{20, maxReconnectDelay},
	}
	for _, tt := range tests {
		if got := reconnectDelay(tt.failures); got != tt.want {
			t.Errorf("reconnectDelay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestStreamEvents(t *testing.T) {
	var conns atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		id := "c1"
		if conns.Add(1) > 1 {
			id = "c2"
		}
		data, _ := json.Marshal(thread.ConversationEvent{Kind: thread.EventInsert, Conversation: thread.ConversationSummary{ID: id}})
		conn.Write(r.Context(), websocket.MessageText, data)
		// Drop the first connection to force a reconnect.
		conn.Close(websocket.StatusGoingAway, "bye")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ch := c.StreamEvents(ctx)

	want := []Event{
		{ConversationEvent: thread.ConversationEvent{Kind: thread.EventInsert, Conversation: thread.ConversationSummary{ID: "c1"}}},
		{Reconnected: true},
		{ConversationEvent: thread.ConversationEvent{Kind: thread.EventInsert, Conversation: thread.ConversationSummary{ID: "c2"}}},
	}
	for i, w := range want {
		select {
		case got := <-ch:
			if got.Reconnected != w.Reconnected || got.Kind != w.Kind || got.Conversation.ID != w.Conversation.ID {
				t.Fatalf("event %d = %+v, want %+v", i, got, w)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	cancel()
	for range ch {
	}
}

func TestSigner(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/media/sign" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var in signBody
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in.URL == "" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
			return
		}
		json.NewEncoder(w).Encode(signBody{URL: in.URL + "?fresh=1"})
	})
	sign := c.Signer("/media/sign")

	got, err := sign.Sign(context.Background(), "https://cdn/x.png")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if got != "https://cdn/x.png?fresh=1" {
		t.Errorf("signed = %q", got)
	}
	if _, err := sign.Sign(context.Background(), ""); err == nil {
		t.Error("empty response: expected error")
	}
}
