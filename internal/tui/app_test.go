package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/wethinkt/go-threadview/internal/client"
	"github.com/wethinkt/go-threadview/internal/thread"
)

type fakeLister struct {
	mu    sync.Mutex
	items []thread.ConversationSummary
	calls int
}

func (f *fakeLister) ListConversations(_ context.Context, _ string, limit int) (thread.ConversationPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return thread.ConversationPage{Conversations: f.items[:min(limit, len(f.items))]}, nil
}

func newTestApp(t *testing.T) (*App, *harness, *fakeLister) {
	t.Helper()
	h := newHarness(t)
	lister := &fakeLister{items: []thread.ConversationSummary{
		{ID: "a", Title: "Alpha", CreatedAt: t0, LastActivity: t0.Add(2 * time.Hour)},
		{ID: "b", Title: "Beta", CreatedAt: t0, LastActivity: t0.Add(time.Hour)},
	}}
	app := NewApp(Deps{Pages: h.pages, Lister: lister, Deleter: h.deleter}, testViewConfig(), "")
	h.install(app.conv)
	h.c = app.conv
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return app, h, lister
}

func runApp(app *App, cmd tea.Cmd) {
	drain(cmd, func(msg tea.Msg) tea.Cmd {
		_, next := app.Update(msg)
		return next
	})
}

func TestAppOpensFromSidebar(t *testing.T) {
	app, h, lister := newTestApp(t)
	h.pages.seed("a", 5)

	runApp(app, app.refetch())
	if lister.calls != 1 || app.side.cursor != "a" {
		t.Fatalf("calls=%d cursor=%q", lister.calls, app.side.cursor)
	}

	runApp(app, app.side.Update(press("enter")))
	if app.conv.ConversationID() != "a" || app.focus != paneConversation {
		t.Fatalf("open = %q focus=%v", app.conv.ConversationID(), app.focus)
	}
	if app.conv.title != "Alpha" || app.conv.log.Len() != 5 {
		t.Errorf("title=%q len=%d", app.conv.title, app.conv.log.Len())
	}
}

func TestAppEvents(t *testing.T) {
	app, h, lister := newTestApp(t)
	h.pages.seed("a", 5)
	runApp(app, app.refetch())
	runApp(app, app.conv.open("a", "Alpha"))

	t.Run("update of open conversation refreshes tail", func(t *testing.T) {
		h.pages.put(testMessage("a", 6))
		ev := client.Event{ConversationEvent: thread.ConversationEvent{
			Kind:         thread.EventUpdate,
			Conversation: thread.ConversationSummary{ID: "a", LastActivity: t0.Add(3 * time.Hour)},
		}}
		runApp(app, app.handleEvent(ev))
		if last, _ := app.conv.log.Latest(); last.ID != "msg_6" {
			t.Errorf("latest = %s, want msg_6", last.ID)
		}
		if lister.calls != 1 {
			t.Errorf("update caused a list refetch")
		}
	})

	t.Run("inserts coalesce into one follow-up refetch", func(t *testing.T) {
		before := lister.calls
		insert := client.Event{ConversationEvent: thread.ConversationEvent{
			Kind:         thread.EventInsert,
			Conversation: thread.ConversationSummary{ID: "c"},
		}}
		first := app.handleEvent(insert)
		second := app.handleEvent(insert)
		third := app.handleEvent(insert)
		runApp(app, second)
		runApp(app, third)
		runApp(app, first)
		if got := lister.calls - before; got != 2 {
			t.Errorf("refetches = %d, want 2", got)
		}
	})

	t.Run("created conversation refetches the list", func(t *testing.T) {
		lister.mu.Lock()
		lister.items = append(lister.items, thread.ConversationSummary{ID: "c", Title: "Gamma", CreatedAt: t0, LastActivity: t0.Add(5 * time.Hour)})
		lister.mu.Unlock()
		before := lister.calls

		runApp(app, app.handleEvent(client.Event{ConversationEvent: thread.ConversationEvent{
			Kind:           thread.EventCreated,
			Conversation:   thread.ConversationSummary{ID: "c", Title: "Gamma", CreatedAt: t0.Add(5 * time.Hour)},
			InitialMessage: "hello",
		}}))
		if lister.calls != before+1 {
			t.Fatalf("created event did not refetch")
		}
		if items := app.list.Items(); items[0].ID != "c" {
			t.Errorf("first row = %s, want c", items[0].ID)
		}
	})

	t.Run("title event renames row and open view", func(t *testing.T) {
		before := lister.calls
		runApp(app, app.handleEvent(client.Event{ConversationEvent: thread.ConversationEvent{
			Kind:         thread.EventTitle,
			Conversation: thread.ConversationSummary{ID: "a", Title: "Alpha renamed"},
		}}))
		if app.conv.title != "Alpha renamed" {
			t.Errorf("open title = %q", app.conv.title)
		}
		for _, c := range app.list.Items() {
			if c.ID == "a" && c.Title != "Alpha renamed" {
				t.Errorf("row title = %q", c.Title)
			}
		}
		if lister.calls != before {
			t.Errorf("title event caused a refetch")
		}
	})

	t.Run("reconnect refetches list and tail", func(t *testing.T) {
		before, pageCalls := lister.calls, len(h.pages.calls)
		runApp(app, app.handleEvent(client.Event{Reconnected: true}))
		if lister.calls != before+1 {
			t.Errorf("list not refetched after reconnect")
		}
		if len(h.pages.calls) != pageCalls+1 {
			t.Errorf("tail not refreshed after reconnect")
		}
	})
}

func TestAppQuitKeptWhileSelecting(t *testing.T) {
	app, h, _ := newTestApp(t)
	h.pages.seed("a", 3)
	runApp(app, app.conv.open("a", ""))
	app.focus = paneConversation
	app.conv.sel.Enter()

	if _, cmd := app.Update(press("q")); cmd != nil {
		if _, ok := cmd().(tea.QuitMsg); ok {
			t.Fatal("q quit while selecting")
		}
	}
	_, cmd := app.Update(tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl})
	if cmd == nil {
		t.Fatal("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c did not quit")
	}
}
